package handler

import (
	"net/http"
	"time"
)

// version is the service's reported version; bumped on release.
const version = "0.1.0"

// Root handles GET /.
func Root(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "hovel",
		"version": version,
	})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// Status handles GET /api/status.
func Status(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, map[string]interface{}{
		"endpoints": []string{
			"POST /api/branch",
			"GET /api/branches",
			"GET /api/branch/{name}",
			"DELETE /api/branch/{name}",
			"POST /api/branch/{name}/start",
			"POST /api/branch/{name}/stop",
			"POST /api/branch/{name}/restart",
			"GET /api/branch/{name}/status",
			"GET /api/branch/{name}/logs",
			"POST /api/branch/{name}/gemini-session",
		},
	})
}
