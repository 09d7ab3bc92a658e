package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/hass-addons/claude-terminal/internal/middleware"
	"github.com/hass-addons/claude-terminal/internal/termsession"
)

// Handler carries the dependencies of the HTTP and WebSocket endpoints.
type Handler struct {
	Sessions *termsession.Service
	DB       *gorm.DB
	// ConfigDir is the Home Assistant configuration directory exposed by the
	// file browser and git endpoints.
	ConfigDir  string
	Supervisor *SupervisorClient
}

// NewRouter mounts every endpoint. spa, when non-nil, serves everything the
// API does not.
func NewRouter(h *Handler, spa http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Ingress)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)

		// Terminal WebSocket
		r.Get("/ws", h.TerminalWS)

		// Sessions
		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions", h.CreateSession)
		r.Delete("/sessions/{id}", h.DeleteSession)

		// Files
		r.Get("/files", h.BrowseFiles)
		r.Get("/files/read", h.ReadFileContent)

		// Git
		r.Get("/git/log", h.GitLog)
		r.Get("/git/diff", h.GitDiff)

		// Home Assistant
		r.Get("/ha/states", h.HAStates)
		r.Get("/ha/states/{entityId}", h.HAEntityState)
		r.Get("/ha/services", h.HAServices)
		r.Get("/ha/config", h.HAConfig)
		r.Get("/ha/logs", h.HALogs)

		// Server logs
		r.Get("/server-logs", GetServerLogs)
		r.Delete("/server-logs", ClearServerLogs)
	})

	if spa != nil {
		r.NotFound(spa.ServeHTTP)
	}
	return r
}

// GetConfig returns what the frontend needs to build its URLs.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ingressPath": middleware.IngressPath(r),
	})
}
