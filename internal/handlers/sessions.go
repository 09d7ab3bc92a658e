package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/hass-addons/claude-terminal/internal/logutil"
)

const maxSessionNameLength = 100

type createSessionRequest struct {
	Name string `json:"name"`
}

type createSessionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListSessions returns every known session merged with its live state.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Sessions.List())
}

// CreateSession starts a new session. The body and its name are optional.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	name := strings.TrimSpace(body.Name)
	if utf8.RuneCountInString(name) > maxSessionNameLength {
		writeError(w, http.StatusBadRequest, "Session name too long")
		return
	}

	info, err := h.Sessions.Create(name)
	if err != nil {
		log.Printf("[terminal] create session %q failed: %v", logutil.SanitizeForLog(name), err)
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	writeJSON(w, http.StatusOK, createSessionResponse{ID: info.ID, Name: info.Name})
}

// DeleteSession destroys a session and forgets it.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Session ID required")
		return
	}

	h.Sessions.Delete(id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
