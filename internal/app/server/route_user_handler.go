package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"shrike/internal/api/dto"
	"shrike/internal/auth"
	"shrike/internal/config"
	"shrike/internal/database"
	"shrike/internal/denylist"
	jobruntime "shrike/internal/jobs/runtime"
	"shrike/internal/security"
)

func checkLogin(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func registerUser(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !auth.IsValidEmail(credentials.Email) {
		writeError(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	if len(credentials.Password) < 8 {
		writeError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	username := credentials.Email[:strings.IndexByte(credentials.Email, '@')]
	user, err := database.RegisterUser(credentials.Email, username, credentials.Password)
	if err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			writeError(w, "Email already in use", http.StatusConflict)
			return
		}
		writeError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func loginUser(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	user, err := database.AuthenticateUser(credentials.Email, credentials.Password)
	if err != nil {
		writeError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token, "role": user.Role})
}

func changePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if len(body.NewPassword) < 8 {
		writeError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	user, err := auth.GetUserFromRequest(r)
	if err != nil {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := database.ChangePassword(&user, body.CurrentPassword, body.NewPassword); err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			writeError(w, "Current password is incorrect", http.StatusForbidden)
			return
		}
		writeError(w, "Failed to change password", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

func getGlobalSettings(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(config.GetConfig())
}

func saveSettings(w http.ResponseWriter, r *http.Request) {
	previousCfg := config.GetConfig()

	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		log.Error("Error decoding request body:", err)
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if key := strings.TrimSpace(newConfig.GeoIP.APIKey); key != "" && !security.IsSecretEncrypted(key) {
		if sealed, err := security.EncryptSecret(key); err == nil {
			newConfig.GeoIP.APIKey = sealed
		}
	}

	config.SetConfig(newConfig)

	if strings.TrimSpace(newConfig.GeoIP.APIKey) != "" {
		go jobruntime.RunGeoIPUpdate(context.Background(), "config-save", true)
	}

	if hasNewDenylistSources(previousCfg.ReporterDenylist.Sources, newConfig.ReporterDenylist.Sources) {
		go denylist.RunRefresh(context.Background(), "config-save")
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Configuration updated successfully"})
}

func grantUserPermissions(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		writeError(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	var body struct {
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Permissions) == 0 {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	user, err := database.GetUserFromId(uint(targetID))
	if err != nil {
		writeError(w, "User not found", http.StatusNotFound)
		return
	}

	if err := database.GrantPermissions(&user, body.Permissions...); err != nil {
		writeError(w, "Failed to grant permissions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"permissions": user.Permissions})
}

func hasNewDenylistSources(oldSources, newSources []string) bool {
	existing := make(map[string]struct{}, len(oldSources))
	for _, src := range oldSources {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		existing[src] = struct{}{}
	}

	for _, src := range newSources {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		if _, ok := existing[src]; !ok {
			return true
		}
	}

	return false
}
