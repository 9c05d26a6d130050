// Package credential validates AI-provider API keys via a lightweight
// remote probe before a branch is allowed to provision.
package credential

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// Outcome is the three-way result of a validation attempt.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeTransientError Outcome = "transient_error"
)

// TestKey short-circuits validation to OutcomeOK without any network call,
// so local development and the test suite never depend on a real key.
const TestKey = "test-api-key-for-development"

// defaultEndpoint is the provider's list-models endpoint; the key is sent
// as a query parameter, per the contract this validator implements.
const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

// Validator probes an AI provider's list-models endpoint to check a key.
type Validator struct {
	endpoint string
	client   *http.Client
}

// New returns a Validator using the provider's default endpoint and a 10s
// timeout HTTP client.
func New() *Validator {
	return &Validator{
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// WithEndpoint overrides the probe endpoint, primarily for tests.
func (v *Validator) WithEndpoint(endpoint string) *Validator {
	v.endpoint = endpoint
	return v
}

// Validate checks key against the provider and returns the outcome.
func (v *Validator) Validate(ctx context.Context, key string) (Outcome, error) {
	if key == "" {
		return OutcomeInvalid, nil
	}
	if key == TestKey {
		log.Debug("credential: accepted well-known test key")
		return OutcomeOK, nil
	}

	url := fmt.Sprintf("%s?key=%s", v.endpoint, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return OutcomeTransientError, fmt.Errorf("credential: building request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("credential: provider unreachable")
		return OutcomeTransientError, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return OutcomeOK, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return OutcomeInvalid, nil
	case resp.StatusCode >= 500:
		return OutcomeTransientError, nil
	default:
		log.WithField("status", resp.StatusCode).Warn("credential: unexpected provider response")
		return OutcomeInvalid, nil
	}
}
