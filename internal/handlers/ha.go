package handlers

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultHALogLines = 100
	maxHAResponseSize = 16 * 1024 * 1024
)

// SupervisorClient calls the Home Assistant Core API through the supervisor
// proxy. Responses are passed through without interpretation.
type SupervisorClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewSupervisorClient(baseURL, token string) *SupervisorClient {
	return &SupervisorClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Get fetches path and returns the body and its content type. A non-2xx
// status is an error.
func (c *SupervisorClient) Get(ctx context.Context, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("HA API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, "", fmt.Errorf("HA API error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHAResponseSize))
	if err != nil {
		return nil, "", fmt.Errorf("HA API read: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// haPassthrough relays one supervisor API path to the client.
func (h *Handler) haPassthrough(w http.ResponseWriter, r *http.Request, path string) {
	if h.Supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, "Home Assistant API not configured")
		return
	}

	body, contentType, err := h.Supervisor.Get(r.Context(), path)
	if err != nil {
		log.Printf("[ha] GET %s: %v", path, err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handler) HAStates(w http.ResponseWriter, r *http.Request) {
	h.haPassthrough(w, r, "/states")
}

func (h *Handler) HAEntityState(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityId")
	h.haPassthrough(w, r, "/states/"+url.PathEscape(entityID))
}

func (h *Handler) HAServices(w http.ResponseWriter, r *http.Request) {
	h.haPassthrough(w, r, "/services")
}

func (h *Handler) HAConfig(w http.ResponseWriter, r *http.Request) {
	h.haPassthrough(w, r, "/config")
}

// HALogs returns the last lines of the Home Assistant error log.
func (h *Handler) HALogs(w http.ResponseWriter, r *http.Request) {
	if h.Supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, "Home Assistant API not configured")
		return
	}

	count := defaultHALogLines
	if q := r.URL.Query().Get("lines"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			count = n
		}
	}

	body, _, err := h.Supervisor.Get(r.Context(), "/error_log")
	if err != nil {
		log.Printf("[ha] GET /error_log: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	lines := strings.Split(string(body), "\n")
	if len(lines) > count {
		lines = lines[len(lines)-count:]
	}
	writeJSON(w, http.StatusOK, map[string][]string{"lines": lines})
}
