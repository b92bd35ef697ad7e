package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes runner invocation failures for retry classification.
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates rate limit exceeded, retry with backoff (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates the integration endpoint is unavailable (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeValidation indicates the endpoint rejected the request body (non-retryable).
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeAuth indicates authentication failed (non-retryable).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Retryable reports whether failures of this type are worth retrying.
func (t ErrorType) Retryable() bool {
	switch t {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	}
	return false
}

var (
	// ErrUnknownIntegration indicates a model declares an integration type
	// no factory is registered for.
	ErrUnknownIntegration = errors.New("unknown integration type")

	// ErrMissingSetting indicates a required integration setting is absent.
	ErrMissingSetting = errors.New("missing integration setting")

	// ErrEmptyResponse indicates the endpoint returned no choices.
	ErrEmptyResponse = errors.New("empty model response")
)

// Error is a classified runner invocation failure.
type Error struct {
	Integration string
	ModelID     string
	Type        ErrorType
	StatusCode  int
	Message     string
	Cause       error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s runner for model %s: %s (status %d, %s)",
			e.Integration, e.ModelID, e.Message, e.StatusCode, e.Type)
	}
	return fmt.Sprintf("%s runner for model %s: %s (%s)", e.Integration, e.ModelID, e.Message, e.Type)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool { return e.Type.Retryable() }

// IsRetryable classifies an arbitrary error from a runner call. Typed runner
// errors answer for themselves; context deadlines count as transient; all
// other failures are treated as fatal.
func IsRetryable(err error) bool {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// classifyStatus maps an HTTP status code to an error type.
func classifyStatus(code int) ErrorType {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorTypeAuth
	case code == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case code >= http.StatusInternalServerError:
		return ErrorTypeProvider
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	default:
		return ErrorTypeUnknown
	}
}
