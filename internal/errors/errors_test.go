package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPErrorCategories(t *testing.T) {
	tests := []struct {
		status    int
		auth      bool
		transient bool
	}{
		{status: 400},
		{status: 401, auth: true},
		{status: 404},
		{status: 429, transient: true},
		{status: 500, transient: true},
		{status: 503, transient: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := FromHTTPStatus("xai", tt.status, []byte(`{"error":"boom"}`))
			assert.ErrorIs(t, err, ErrTransport)
			assert.Equal(t, tt.auth, errors.Is(err, ErrAuth))
			assert.Equal(t, tt.transient, errors.Is(err, ErrTransient))
			assert.Contains(t, err.Error(), "boom")

			var httpErr *HTTPError
			if assert.ErrorAs(t, err, &httpErr) {
				assert.Equal(t, tt.status, httpErr.StatusCode)
			}
		})
	}
}

func TestFromHTTPStatusTruncatesBody(t *testing.T) {
	body := make([]byte, maxHTTPErrorBody*2)
	for i := range body {
		body[i] = 'a'
	}

	var httpErr *HTTPError
	err := FromHTTPStatus("openai", 502, body)
	if assert.ErrorAs(t, err, &httpErr) {
		assert.Len(t, httpErr.Body, maxHTTPErrorBody+3)
	}
}

func TestWrapWithCategoryKeepsCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := WrapWithCategory(cause, "chat failed", ErrTransport)

	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, WrapWithCategory(nil, "x", ErrTransport))
}

func TestTransportDeadlineIsRetryable(t *testing.T) {
	err := Transport(context.DeadlineExceeded, "chat request")
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, IsRetryable(err))

	cancelled := Transport(context.Canceled, "chat request")
	assert.False(t, IsRetryable(cancelled))
	assert.False(t, errors.Is(cancelled, ErrTransport))
}

func TestMapError(t *testing.T) {
	m := NewDefaultErrorMapper()

	assert.Nil(t, m.MapError(nil))
	assert.ErrorIs(t, m.MapError(errors.New("error, status code: 401, message: invalid api key")), ErrAuth)
	assert.ErrorIs(t, m.MapError(errors.New("error, status code: 429, message: rate limit")), ErrTransient)
	assert.ErrorIs(t, m.MapError(errors.New("error, status code: 503, message: overloaded")), ErrTransport)
	assert.ErrorIs(t, m.MapError(errors.New("json: cannot unmarshal string")), ErrDecode)
	assert.ErrorIs(t, m.MapError(errors.New("something odd")), ErrTransport)

	already := Unsupported("pdf input")
	assert.Equal(t, already, m.MapError(already))
}

func TestCategory(t *testing.T) {
	m := NewDefaultErrorMapper()

	assert.Equal(t, "", m.Category(nil))
	assert.Equal(t, "ErrAuth", m.Category(Auth("missing key")))
	assert.Equal(t, "ErrUnsupported", m.Category(Unsupported("embeddings")))
	assert.Equal(t, "ErrDecode", m.Category(Decode(nil, "empty body")))
	assert.Equal(t, "ErrAuth", m.Category(FromHTTPStatus("xai", 401, nil)))
	assert.Equal(t, "ErrTransport", m.Category(FromHTTPStatus("xai", 500, nil)))
	assert.Equal(t, "ErrNotFound", m.Category(NotFound("provider grok")))
	assert.Equal(t, "Unknown", m.Category(errors.New("plain")))
}
