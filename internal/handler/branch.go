package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hovel-dev/hovel/internal/engine"
	"github.com/hovel-dev/hovel/internal/portalloc"
	"github.com/hovel-dev/hovel/internal/render"
	"github.com/hovel-dev/hovel/internal/terminal"
)

// BranchHandler wires the Control API's /api/branch* routes to the
// branch engine.
type BranchHandler struct {
	engine   *engine.Engine
	terminal *terminal.Manager
}

// NewBranchHandler returns a handler backed by eng and term.
func NewBranchHandler(eng *engine.Engine, term *terminal.Manager) *BranchHandler {
	return &BranchHandler{engine: eng, terminal: term}
}

type createBranchRequest struct {
	BranchName   string   `json:"branch_name"`
	Services     []string `json:"services,omitempty"`
	GeminiAPIKey string   `json:"gemini_api_key"`
	AutoStart    bool     `json:"auto_start,omitempty"`
}

// Create handles POST /api/branch.
func (h *BranchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	b, err := h.engine.Create(r.Context(), engine.CreateRequest{
		Name:      req.BranchName,
		Services:  req.Services,
		APIKey:    req.GeminiAPIKey,
		AutoStart: req.AutoStart,
	})
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, map[string]interface{}{
		"branch_name":          b.Name,
		"port":                 b.Port,
		"status":               b.Status,
		"services":             b.Services,
		"gemini_api_validated": b.CredentialValidated,
		"container_started":    b.ContainerStarted,
		"git_branch":           b.GitBranch,
		"gemini_config_path":   b.GeminiConfigPath,
	})
}

// List handles GET /api/branches.
func (h *BranchHandler) List(w http.ResponseWriter, r *http.Request) {
	branches, err := h.engine.List()
	if err != nil {
		SendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	SendJSON(w, http.StatusOK, map[string]interface{}{
		"branches":  branches,
		"count":     len(branches),
		"timestamp": time.Now().UTC(),
	})
}

// Get handles GET /api/branch/{name}.
func (h *BranchHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	b, err := h.engine.Get(name)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, b)
}

// Delete handles DELETE /api/branch/{name}.
func (h *BranchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.engine.Delete(r.Context(), name); err != nil {
		h.sendEngineError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type startBranchRequest struct {
	Services []string `json:"services,omitempty"`
}

// Start handles POST /api/branch/{name}/start.
func (h *BranchHandler) Start(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req startBranchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			SendError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	b, err := h.engine.Start(r.Context(), name, req.Services)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, map[string]interface{}{
		"status":           b.Status,
		"services_started": b.Services,
	})
}

// Stop handles POST /api/branch/{name}/stop.
func (h *BranchHandler) Stop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	b, err := h.engine.Stop(r.Context(), name)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, map[string]interface{}{"status": b.Status})
}

// Restart handles POST /api/branch/{name}/restart.
func (h *BranchHandler) Restart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	b, err := h.engine.Restart(r.Context(), name)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, map[string]interface{}{"status": b.Status})
}

// Status handles GET /api/branch/{name}/status.
func (h *BranchHandler) Status(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	states, err := h.engine.Status(r.Context(), name)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	containerStatus := "stopped"
	for _, s := range states {
		if s.State == "running" {
			containerStatus = "running"
			break
		}
	}

	SendJSON(w, http.StatusOK, map[string]interface{}{
		"container_status": containerStatus,
		"per_service":      states,
	})
}

// Logs handles GET /api/branch/{name}/logs.
func (h *BranchHandler) Logs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	lines := 100
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			SendError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = n
	}

	logs, err := h.engine.Logs(r.Context(), name, lines)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, map[string]string{"logs": logs})
}

// GeminiSession handles POST /api/branch/{name}/gemini-session.
func (h *BranchHandler) GeminiSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	b, err := h.engine.Get(name)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	primaryService := "app"
	if len(b.Services) > 0 {
		primaryService = b.Services[0]
	}

	session, err := h.terminal.Start(r.Context(), b, primaryService)
	if err != nil {
		h.sendTerminalError(w, err)
		return
	}

	if _, err := h.engine.AttachTerminalSession(name, session); err != nil {
		SendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	SendJSON(w, http.StatusOK, map[string]interface{}{
		"ttyd_port":  session.Port,
		"ttyd_url":   session.URL,
		"access_url": session.URL,
		"command":    session.Command,
	})
}

func (h *BranchHandler) sendEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrBranchNotFound):
		SendError(w, http.StatusNotFound, "branch not found")
	case errors.Is(err, engine.ErrBranchExists):
		SendError(w, http.StatusConflict, "branch exists")
	case errors.Is(err, engine.ErrInvalidName):
		SendError(w, http.StatusBadRequest, "invalid branch name")
	case errors.Is(err, engine.ErrMissingCredential):
		SendError(w, http.StatusBadRequest, "gemini_api_key is required")
	case errors.Is(err, engine.ErrCredentialInvalid):
		SendError(w, http.StatusUnauthorized, "invalid api key")
	case errors.Is(err, engine.ErrCredentialTransient):
		SendError(w, http.StatusServiceUnavailable, "credential provider unreachable, try again")
	case errors.Is(err, render.ErrUnknownService):
		SendError(w, http.StatusBadRequest, stripRenderPrefix(err.Error()))
	case errors.Is(err, render.ErrNoServices):
		SendError(w, http.StatusBadRequest, stripRenderPrefix(err.Error()))
	case errors.Is(err, portalloc.ErrExhausted):
		SendError(w, http.StatusServiceUnavailable, "no free port available")
	default:
		SendError(w, http.StatusInternalServerError, err.Error())
	}
}

// stripRenderPrefix removes the "render: " package prefix that
// internal/render's sentinel errors carry, so the Control API surfaces
// a clean "unknown service: nope" body instead of "render: unknown
// service: nope".
func stripRenderPrefix(msg string) string {
	return strings.TrimPrefix(msg, "render: ")
}

func (h *BranchHandler) sendTerminalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, terminal.ErrContainerNotRunning):
		SendError(w, http.StatusBadRequest, "branch container is not running")
	case errors.Is(err, terminal.ErrBranchNotFound):
		SendError(w, http.StatusNotFound, "branch not found")
	default:
		SendError(w, http.StatusInternalServerError, err.Error())
	}
}
