// Package handler implements the Control API: thin HTTP handlers that
// translate chi requests into BranchEngine operations and back into the
// JSON response shapes the API contract defines.
package handler

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the uniform shape for every non-2xx response.
type errorResponse struct {
	Error  string      `json:"error"`
	Code   string      `json:"code,omitempty"`
	Detail interface{} `json:"detail,omitempty"`
}

// SendJSON writes v as a JSON response with the given status code.
func SendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// SendError writes a uniform error envelope.
func SendError(w http.ResponseWriter, status int, message string) {
	SendJSON(w, status, errorResponse{Error: message})
}

// SendErrorWithCode writes a uniform error envelope including a machine
// readable code.
func SendErrorWithCode(w http.ResponseWriter, status int, message, code string) {
	SendJSON(w, status, errorResponse{Error: message, Code: code})
}
