package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateTestKeyShortCircuits(t *testing.T) {
	v := New()
	outcome, err := v.Validate(context.Background(), TestKey)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if outcome != OutcomeOK {
		t.Errorf("outcome = %v, want OutcomeOK", outcome)
	}
}

func TestValidateEmptyKeyIsInvalid(t *testing.T) {
	v := New()
	outcome, err := v.Validate(context.Background(), "")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if outcome != OutcomeInvalid {
		t.Errorf("outcome = %v, want OutcomeInvalid", outcome)
	}
}

func TestValidateOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := New().WithEndpoint(srv.URL)
	outcome, err := v.Validate(context.Background(), "some-key")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if outcome != OutcomeOK {
		t.Errorf("outcome = %v, want OutcomeOK", outcome)
	}
}

func TestValidateUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := New().WithEndpoint(srv.URL)
	outcome, err := v.Validate(context.Background(), "bad-key")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if outcome != OutcomeInvalid {
		t.Errorf("outcome = %v, want OutcomeInvalid", outcome)
	}
}

func TestValidateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := New().WithEndpoint(srv.URL)
	outcome, err := v.Validate(context.Background(), "some-key")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if outcome != OutcomeTransientError {
		t.Errorf("outcome = %v, want OutcomeTransientError", outcome)
	}
}
