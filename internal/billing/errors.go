package billing

import (
	"fmt"
	"time"
)

// ValidationError reports malformed caller input, such as a billing cycle
// that does not match YYYY-MM. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthenticationError reports a credential rejection by the provider.
// It is surfaced immediately and never retried.
type AuthenticationError struct {
	Provider Provider
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// ProviderError reports any other non-success provider response. Retry
// policy is a caller concern.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Code       string // provider error code, if the API reports one
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: provider error %s (HTTP %d): %s", e.Provider, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: provider error (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
}

// RateLimitError reports provider throttling. Backoff is expected at the
// caller level; the library does not retry automatically.
type RateLimitError struct {
	Provider Provider
	Message  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited: %s", e.Provider, e.Message)
}

// ReportGenerationError is the terminal failure reported by an asynchronous
// report job. Retrying the same operation URL will not succeed.
type ReportGenerationError struct {
	Status  string
	Message string
}

func (e *ReportGenerationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("report generation failed (status %s): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("report generation failed (status %s)", e.Status)
}

// TimeoutError reports a polling retry budget exhausted while the operation
// was still running. Unlike ReportGenerationError this is recoverable: the
// caller may poll the same operation URL again with a larger budget.
type TimeoutError struct {
	Checks   int
	Interval time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("report still running after %d status checks (%s apart)", e.Checks, e.Interval)
}
