package hovelclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/branch" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.BranchName != "feature-x" {
			t.Fatalf("unexpected body: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CreateResponse{
			BranchName: req.BranchName,
			Port:       8001,
			Status:     "created",
			Services:   req.Services,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Create(context.Background(), CreateRequest{BranchName: "feature-x", GeminiAPIKey: "test-api-key-for-development"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if resp.Port != 8001 || resp.Status != "created" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClientListError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "registry unavailable"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.List(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Message != "registry unavailable" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestClientListEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ListResponse{Branches: nil, Count: 0})
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Count != 0 || len(resp.Branches) != 0 {
		t.Fatalf("expected empty list, got %+v", resp)
	}
}

func TestClientDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/branch/feature-x" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Delete(context.Background(), "feature-x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
