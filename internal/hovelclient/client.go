// Package hovelclient is a thin HTTP client over hoveld's Control API,
// used by the hovelctl companion CLI.
package hovelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hovel-dev/hovel/internal/model"
)

// Client talks to a single hoveld instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client targeting baseURL (e.g. "http://localhost:8000").
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

// APIError is returned when the server responds with a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hovel: %s (status %d)", e.Message, e.Status)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hovel: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errBody)
		msg := errBody.Error
		if msg == "" {
			msg = "request failed"
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateRequest mirrors the POST /api/branch body.
type CreateRequest struct {
	BranchName   string   `json:"branch_name"`
	Services     []string `json:"services,omitempty"`
	GeminiAPIKey string   `json:"gemini_api_key"`
	AutoStart    bool     `json:"auto_start,omitempty"`
}

// CreateResponse mirrors the POST /api/branch response.
type CreateResponse struct {
	BranchName         string   `json:"branch_name"`
	Port               int      `json:"port"`
	Status             string   `json:"status"`
	Services           []string `json:"services"`
	GeminiAPIValidated bool     `json:"gemini_api_validated"`
	ContainerStarted   bool     `json:"container_started"`
}

// Create provisions a new branch.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	var out CreateResponse
	if err := c.do(ctx, http.MethodPost, "/api/branch", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListResponse mirrors the GET /api/branches response.
type ListResponse struct {
	Branches []*model.Branch `json:"branches"`
	Count    int             `json:"count"`
}

// List returns every branch known to the server.
func (c *Client) List(ctx context.Context) (*ListResponse, error) {
	var out ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/branches", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns a single branch's record.
func (c *Client) Get(ctx context.Context, name string) (*model.Branch, error) {
	var out model.Branch
	if err := c.do(ctx, http.MethodGet, "/api/branch/"+name, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a branch.
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/branch/"+name, nil, nil)
}

// Start starts a branch's services (or all, if services is empty).
func (c *Client) Start(ctx context.Context, name string, services []string) error {
	return c.do(ctx, http.MethodPost, "/api/branch/"+name+"/start", map[string]interface{}{"services": services}, nil)
}

// Stop stops a branch.
func (c *Client) Stop(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/branch/"+name+"/stop", nil, nil)
}

// Restart restarts a branch.
func (c *Client) Restart(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/branch/"+name+"/restart", nil, nil)
}

// LogsResponse mirrors GET /api/branch/{name}/logs.
type LogsResponse struct {
	Logs string `json:"logs"`
}

// Logs fetches a branch's recent container logs.
func (c *Client) Logs(ctx context.Context, name string, lines int) (*LogsResponse, error) {
	path := fmt.Sprintf("/api/branch/%s/logs?lines=%d", name, lines)
	var out LogsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StatusResponse mirrors GET /api/branch/{name}/status.
type StatusResponse struct {
	ContainerStatus string `json:"container_status"`
	PerService      []struct {
		Name  string `json:"name"`
		State string `json:"state"`
	} `json:"per_service"`
}

// Status fetches live container status for a branch.
func (c *Client) Status(ctx context.Context, name string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/branch/"+name+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionResponse mirrors POST /api/branch/{name}/gemini-session.
type SessionResponse struct {
	TTYDPort int    `json:"ttyd_port"`
	TTYDURL  string `json:"ttyd_url"`
	Command  string `json:"command"`
}

// Session starts a ttyd terminal session for a branch.
func (c *Client) Session(ctx context.Context, name string) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/branch/"+name+"/gemini-session", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
