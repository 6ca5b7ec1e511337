package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/net/netutil"

	"shrike/internal/auth"
	"shrike/internal/database"
	"shrike/internal/domain"
)

const (
	distDir            = "./static/frontend/browser"
	maxConcurrentConns = 512
)

var (
	requireAbuseView     = auth.RequirePermission(domain.PermAbuseView)
	requireAdvancedAdmin = auth.RequirePermission(domain.PermAdminAdvanced)
	requireCuration      = auth.RequirePermission(domain.PermCollectionsEdit, domain.PermAdminCuration)
	requireBlocklistEdit = auth.RequirePermission(domain.PermBlocklistEdit)
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestAddr extracts the caller's address for activity logging. The first
// X-Forwarded-For hop wins when a proxy sits in front.
func requestAddr(r *http.Request) netip.Addr {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
		if addr, err := netip.ParseAddr(first); err == nil {
			return addr
		}
	}

	if addrPort, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return addrPort.Addr()
	}
	if addr, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		return addr
	}
	return netip.Addr{}
}

func validateListConfigs() {
	configs := map[string]interface{ Validate() error }{
		"abuse_reports":   database.AbuseReportListConfig(),
		"collections":     database.CollectionListConfig(),
		"moderation_jobs": database.ModerationJobListConfig(),
		"blocks":          database.BlockListConfig(),
	}
	for name, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid %s list config: %v", name, err)
		}
	}
}

func ServeFrontend(port int) error {
	if abs, err := filepath.Abs(distDir); err == nil {
		log.Debugf("➡️  Serving static from: %s", abs)
	} else {
		log.Warnf("couldn’t resolve %q: %v", distDir, err)
	}

	mux := http.NewServeMux()
	fs := http.FileServer(http.Dir(distDir))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fp := filepath.Join(distDir, filepath.Clean(r.URL.Path))
		if info, err := os.Stat(fp); err == nil && !info.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(distDir, "index.csr.html"))
	})

	addr := fmt.Sprintf(":%d", port)
	log.Infof("Starting frontend static server on port %s", addr)
	return http.ListenAndServe(addr, mux)
}

func OpenRoutes(port int, serveStatic bool) error {
	validateListConfigs()

	router := http.NewServeMux()
	router.HandleFunc("POST /register", registerUser)
	router.HandleFunc("POST /login", loginUser)
	router.Handle("GET /checkLogin", auth.RequireAuth(http.HandlerFunc(checkLogin)))
	router.Handle("POST /changePassword", auth.RequireAuth(http.HandlerFunc(changePassword)))
	router.Handle("POST /saveSettings", auth.IsAdmin(http.HandlerFunc(saveSettings)))
	router.Handle("GET /global/settings", auth.IsAdmin(http.HandlerFunc(getGlobalSettings)))
	router.Handle("POST /users/{id}/permissions", auth.IsAdmin(http.HandlerFunc(grantUserPermissions)))

	router.HandleFunc("POST /abuseReports", submitAbuseReport)
	router.Handle("GET /abuseReports", requireAbuseView(http.HandlerFunc(listAbuseReports)))
	router.Handle("GET /abuseReports/{id}", requireAbuseView(http.HandlerFunc(getAbuseReport)))

	router.Handle("GET /moderationJobs", requireAbuseView(http.HandlerFunc(listModerationJobs)))
	router.Handle("GET /moderationJobs/{id}", requireAbuseView(http.HandlerFunc(getModerationJob)))
	router.Handle("POST /moderationJobs/{id}/decision", requireAdvancedAdmin(http.HandlerFunc(decideModerationJob)))
	router.HandleFunc("POST /moderationJobs/{id}/appeal", appealModerationJob)

	router.Handle("GET /collections", requireCuration(http.HandlerFunc(listCollections)))
	router.Handle("POST /collections", requireCuration(http.HandlerFunc(createCollection)))
	router.Handle("PUT /collections/{id}", requireCuration(http.HandlerFunc(updateCollection)))
	router.Handle("DELETE /collections/{id}", requireAdvancedAdmin(http.HandlerFunc(deleteCollection)))
	router.Handle("POST /collections/{id}/restore", requireAdvancedAdmin(http.HandlerFunc(restoreCollection)))
	router.Handle("PUT /collections/{id}/addons", requireCuration(http.HandlerFunc(setCollectionAddon)))
	router.Handle("DELETE /collections/{id}/addons/{addonId}", requireCuration(http.HandlerFunc(removeCollectionAddon)))

	router.Handle("GET /blocks", requireBlocklistEdit(http.HandlerFunc(listBlocks)))
	router.Handle("POST /blocks", requireBlocklistEdit(http.HandlerFunc(upsertBlock)))
	router.Handle("DELETE /blocks/{id}", requireBlocklistEdit(http.HandlerFunc(deleteBlock)))

	router.HandleFunc("GET /version", getVersion)
	router.HandleFunc("GET /releases", getReleases)
	router.Handle("GET /updates/latest", auth.IsAdmin(http.HandlerFunc(getLatestUpdate)))

	router.HandleFunc("POST /graphql", serveGraphQL)

	// ---------------
	// FRONTEND
	// ---------------
	if serveStatic {
		fs := http.FileServer(http.Dir(distDir))

		router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				http.NotFound(w, r)
			}
			path := filepath.Join(distDir, filepath.Clean(r.URL.Path))
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				fs.ServeHTTP(w, r)
				return
			}
			http.ServeFile(w, r, filepath.Join(distDir, "index.csr.html"))
		})

		log.Debugf("Frontend assets served from %s on the same port", distDir)
	}

	log.Debug("Routes opened")

	server := http.Server{
		Handler: enableCORS(router),
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("api listener failed: %w", err)
	}
	listener = netutil.LimitListener(listener, maxConcurrentConns)

	log.Infof("Starting shrike backend on port :%d", port)
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
