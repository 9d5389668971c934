package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrAuth - credential missing or rejected (detected before any network call when empty)
	ErrAuth = errors.New("authentication error")

	// ErrTransport - network failure or non-2xx HTTP status from a vendor
	ErrTransport = errors.New("transport error")

	// ErrDecode - vendor response body does not match the expected shape
	ErrDecode = errors.New("decode error")

	// ErrUnsupported - capability or message type not implemented by the backend
	ErrUnsupported = errors.New("unsupported")

	// ErrPermissionDenied - permission denied
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidInput - invalid input (bad configuration, malformed user document)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - resource not found (unknown provider, missing secret)
	ErrNotFound = errors.New("not found")

	// ErrConflict - conflict
	ErrConflict = errors.New("conflict")

	// ErrTransient - transient error (rate limit, 5xx, timeout); callers may retry
	ErrTransient = errors.New("transient error")

	// ErrInvalidModelOutput - model returned output that failed validation
	ErrInvalidModelOutput = errors.New("invalid model output")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)
