package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const maxHTTPErrorBody = 2048

// ErrorMapper maps external errors to the llmkit error taxonomy
type ErrorMapper interface {
	MapError(err error) error
	IsRetryable(err error) bool
	Category(err error) string
}

// DefaultErrorMapper implements llmkit error taxonomy mapping
type DefaultErrorMapper struct{}

// NewDefaultErrorMapper creates a new error mapper
func NewDefaultErrorMapper() *DefaultErrorMapper {
	return &DefaultErrorMapper{}
}

// MapError maps SDK and transport errors that carry no category onto one.
// Errors that already belong to a category are returned unchanged.
func (m *DefaultErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}

	// Propagate context errors as-is
	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout: %w: %w", ErrTransport, ErrTransient)
	}

	if m.Category(err) != "Unknown" {
		return err
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "status code: 401"), strings.Contains(errStr, "unauthorized"),
		strings.Contains(errStr, "invalid api key"), strings.Contains(errStr, "invalid x-api-key"):
		return fmt.Errorf("%w: %w", ErrAuth, err)

	case strings.Contains(errStr, "status code: 403"), strings.Contains(errStr, "forbidden"), strings.Contains(errStr, "permission denied"):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)

	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "quota"), strings.Contains(errStr, "too many requests"),
		strings.Contains(errStr, "status code: 429"), strings.Contains(errStr, "overloaded"):
		return fmt.Errorf("rate limited: %w: %w: %w", ErrTransport, ErrTransient, err)

	case strings.Contains(errStr, "status code: 5"), strings.Contains(errStr, "server error"), strings.Contains(errStr, "bad gateway"),
		strings.Contains(errStr, "service unavailable"), strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"),
		strings.Contains(errStr, "connection"), strings.Contains(errStr, "unreachable"), strings.Contains(errStr, "eof"):
		return fmt.Errorf("%w: %w: %w", ErrTransport, ErrTransient, err)

	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "invalid character"), strings.Contains(errStr, "cannot unmarshal"):
		return fmt.Errorf("%w: %w", ErrDecode, err)

	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

// IsRetryable determines if an error should trigger a retry
func (m *DefaultErrorMapper) IsRetryable(err error) bool {
	return IsRetryable(err)
}

// Category returns the llmkit error category for an error
func (m *DefaultErrorMapper) Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAuth):
		return "ErrAuth"
	case errors.Is(err, ErrUnsupported):
		return "ErrUnsupported"
	case errors.Is(err, ErrDecode):
		return "ErrDecode"
	case errors.Is(err, ErrTransport):
		return "ErrTransport"
	case errors.Is(err, ErrPermissionDenied):
		return "ErrPermissionDenied"
	case errors.Is(err, ErrInvalidInput):
		return "ErrInvalidInput"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrConflict):
		return "ErrConflict"
	case errors.Is(err, ErrTransient):
		return "ErrTransient"
	case errors.Is(err, ErrInvalidModelOutput):
		return "ErrInvalidModelOutput"
	case errors.Is(err, ErrInternal):
		return "ErrInternal"
	default:
		return "Unknown"
	}
}

// HTTPError is a non-2xx vendor reply. It always matches ErrTransport; 401
// also matches ErrAuth, 403 ErrPermissionDenied, and 429/5xx ErrTransient.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() []error {
	errs := []error{ErrTransport}
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		errs = append(errs, ErrAuth)
	case e.StatusCode == http.StatusForbidden:
		errs = append(errs, ErrPermissionDenied)
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		errs = append(errs, ErrTransient)
	}
	return errs
}

// FromHTTPStatus builds an HTTPError, truncating the body.
func FromHTTPStatus(provider string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxHTTPErrorBody {
		msg = msg[:maxHTTPErrorBody] + "..."
	}
	return &HTTPError{Provider: provider, StatusCode: status, Body: msg}
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory wraps an error with a specific category, keeping the cause
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", message, category, err)
}

// IsCategory checks if error belongs to specific category
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// Auth reports a missing or rejected credential
func Auth(message string) error {
	return fmt.Errorf("%s: %w", message, ErrAuth)
}

// Transport wraps a network failure
func Transport(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w: %w", message, ErrTransport, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w: %w", message, ErrTransport, err)
}

// Decode wraps a response that could not be decoded
func Decode(err error, message string) error {
	if err == nil {
		return fmt.Errorf("%s: %w", message, ErrDecode)
	}
	return fmt.Errorf("%s: %w: %w", message, ErrDecode, err)
}

// Unsupported reports a capability the backend does not implement
func Unsupported(message string) error {
	return fmt.Errorf("%s: %w", message, ErrUnsupported)
}

// NotFound wraps error as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// PermissionDenied wraps error as permission denied
func PermissionDenied(message string) error {
	return fmt.Errorf("%s: %w", message, ErrPermissionDenied)
}

// InvalidInput wraps error as invalid input
func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

// Transient wraps error as transient
func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

// Internal wraps error as internal
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

// InvalidModelOutput wraps error as invalid model output
func InvalidModelOutput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidModelOutput)
}

// IsRetryable checks if an error is transient or conflict related, indicating it can be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict)
}
