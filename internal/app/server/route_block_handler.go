package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"shrike/internal/api/dto"
	"shrike/internal/auth"
	"shrike/internal/database"
)

func listBlocks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := parsePositiveInt(query.Get("page"), 1)
	pageSize := parsePositiveInt(query.Get("page_size"), 0)

	result, err := database.GetBlockPage(page, pageSize, query.Get("q"))
	if err != nil {
		log.Error("Failed to list blocks", "error", err)
		writeError(w, "Failed to load blocks", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func upsertBlock(w http.ResponseWriter, r *http.Request) {
	var upsert dto.BlockUpsert
	if err := json.NewDecoder(r.Body).Decode(&upsert); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	upsert.GUID = strings.TrimSpace(upsert.GUID)
	if upsert.GUID == "" {
		writeError(w, "guid is required", http.StatusBadRequest)
		return
	}

	var actorID *uint
	if userID, err := auth.GetUserIDFromRequest(r); err == nil {
		actorID = &userID
	}

	block, err := database.UpsertBlock(upsert, actorID, requestAddr(r))
	if err != nil {
		log.Error("Failed to upsert block", "guid", upsert.GUID, "error", err)
		writeError(w, "Failed to save block", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": block.ID, "guid": block.GUID})
}

func deleteBlock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, "Invalid block id", http.StatusBadRequest)
		return
	}

	var actorID *uint
	if userID, userErr := auth.GetUserIDFromRequest(r); userErr == nil {
		actorID = &userID
	}

	if err := database.DeleteBlock(id, actorID, requestAddr(r)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, "Block not found", http.StatusNotFound)
			return
		}
		log.Error("Failed to delete block", "id", id, "error", err)
		writeError(w, "Failed to delete block", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
