// Package provider abstracts the compute provider's pod API. The provider
// has shipped several API generations for what is conceptually one set of
// operations; each generation lives behind the same Client interface so the
// orchestration loop never depends on which one is in use.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Phase is the normalized pod lifecycle state. Provider generations use
// different vocabularies; everything is mapped onto these values.
type Phase string

const (
	PhasePending   Phase = "PENDING"
	PhaseRunning   Phase = "RUNNING"
	PhaseSucceeded Phase = "SUCCEEDED"
	PhaseFailed    Phase = "FAILED"

	// PhaseUnknown covers vocabulary the mapping does not recognize. It is
	// never terminal: an unknown value must not silently end the wait loop.
	PhaseUnknown Phase = "UNKNOWN"
)

// Terminal reports whether the phase is absorbing.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// JobRequest describes the pod to create.
type JobRequest struct {
	Name         string
	Image        string
	CloudType    string
	GPUTypeID    string
	GPUCount     int
	VolumeGB     int
	Env          map[string]string
	StartCommand string
}

// Status is one observation of a pod's lifecycle state.
type Status struct {
	Phase Phase
	// RawPhase is the provider's own phase string, kept for diagnostics and
	// unknown-value warnings.
	RawPhase string
	// RuntimeSeconds is seconds since the pod started, when reported.
	RuntimeSeconds *float64
	// ExitCode is the workload exit code, meaningful only in terminal phases.
	ExitCode *int
}

// Client is the narrow boundary the orchestrator drives. Logs returns the
// cumulative log text; the provider offers no pagination, so callers track
// how much they have already seen.
type Client interface {
	Create(ctx context.Context, req JobRequest) (string, error)
	Status(ctx context.Context, podID string) (Status, error)
	Logs(ctx context.Context, podID string) (string, error)
	Terminate(ctx context.Context, podID string) error
}

// bodyLimit bounds how much of an error response body is surfaced, so a
// misbehaving endpoint cannot flood the logs.
const bodyLimit = 2048

// APIError is a non-2xx HTTP response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status code indicates a transient
// rate-limit or gateway condition worth retrying.
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case 429, 502, 503, 504:
		return true
	}
	return false
}

// AppError is an application-level error envelope returned with HTTP 200.
// Retrying will not fix a request the provider has already rejected.
type AppError struct {
	Messages []string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("provider API errors: %s", strings.Join(e.Messages, "; "))
}

// ErrMissingPodID means the provider reported success without an identifier.
// That is a contract violation, never retried.
var ErrMissingPodID = errors.New("provider response contains no pod id")

// IsRetryable classifies an error for the submit retry loop. Network-level
// failures (no HTTP response at all) are treated as transient.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return false
	}
	if errors.Is(err, ErrMissingPodID) {
		return false
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return false
	}
	return true
}

// ParseError means the provider's response did not match the expected
// schema. Fields are validated explicitly rather than accessed optimistically.
type ParseError struct {
	Field string
	Cause error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed provider response (%s): %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("malformed provider response: missing or invalid %s", e.Field)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// NormalizePhase maps a provider phase string onto the canonical set.
// exitCode disambiguates generations that only report "exited".
func NormalizePhase(raw string, exitCode *int) Phase {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING", "CREATED", "QUEUED", "PROVISIONING":
		return PhasePending
	case "RUNNING", "STARTED":
		return PhaseRunning
	case "SUCCEEDED", "SUCCESS", "COMPLETED":
		return PhaseSucceeded
	case "FAILED", "ERROR", "DEAD":
		return PhaseFailed
	case "EXITED", "TERMINATED", "STOPPED":
		// Older generations report only that the container stopped; the
		// exit code decides the outcome. Without one, assume failure: a
		// reclaimed pod that never reported success did not succeed.
		if exitCode != nil && *exitCode == 0 {
			return PhaseSucceeded
		}
		return PhaseFailed
	default:
		return PhaseUnknown
	}
}

func truncateBody(body string) string {
	if len(body) > bodyLimit {
		return body[:bodyLimit]
	}
	return body
}
