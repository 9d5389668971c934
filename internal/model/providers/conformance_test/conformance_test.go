package conformance_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/model"
	"github.com/harunnryd/llmkit/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, `{"error":"teapot"}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

var weatherTool = contract.NewFunctionTool("get_weather", "Look up weather", contract.ParametersSchema{
	Properties: map[string]contract.ParameterProperty{"city": {Type: "string", Description: "City"}},
	Required:   []string{"city"},
})

func TestMissingKeyFailsBeforeAnyRequest(t *testing.T) {
	for _, backend := range model.Backends() {
		if !backend.RequiresKey() {
			continue
		}
		t.Run(string(backend), func(t *testing.T) {
			srv, calls := countingServer(t)
			p, err := model.NewBuilder().Backend(string(backend)).BaseURL(srv.URL).Build()
			require.NoError(t, err)

			ctx := context.Background()
			msgs := []contract.ChatMessage{contract.UserText("Hi")}

			_, err = p.Chat(ctx, msgs)
			assert.ErrorIs(t, err, llmErrors.ErrAuth)

			_, err = p.ChatWithTools(ctx, msgs, []contract.Tool{weatherTool})
			assert.ErrorIs(t, err, llmErrors.ErrAuth)

			_, err = p.Complete(ctx, contract.NewCompletionRequest("Hi"))
			assert.ErrorIs(t, err, llmErrors.ErrAuth)

			_, err = p.Embed(ctx, []string{"a"})
			if !llmErrors.IsCategory(err, llmErrors.ErrUnsupported) {
				assert.ErrorIs(t, err, llmErrors.ErrAuth)
			}

			assert.Equal(t, int32(0), calls.Load())
		})
	}
}

func TestEmptyEmbeddingInputMakesNoRequest(t *testing.T) {
	for _, backend := range model.Backends() {
		if backend == model.BackendAnthropic {
			continue
		}
		t.Run(string(backend), func(t *testing.T) {
			srv, calls := countingServer(t)
			p, err := model.NewBuilder().Backend(string(backend)).APIKey("test-key").BaseURL(srv.URL).Build()
			require.NoError(t, err)

			vectors, err := p.Embed(context.Background(), []string{})
			require.NoError(t, err)
			assert.NotNil(t, vectors)
			assert.Empty(t, vectors)
			assert.Equal(t, int32(0), calls.Load())
		})
	}
}

func TestConfiguredToolsAreExposed(t *testing.T) {
	for _, backend := range model.Backends() {
		t.Run(string(backend), func(t *testing.T) {
			p, err := model.NewBuilder().Backend(string(backend)).Tools(weatherTool).Build()
			require.NoError(t, err)
			require.Len(t, p.Tools(), 1)
			assert.Equal(t, "get_weather", p.Tools()[0].Function.Name)
			assert.NotEmpty(t, p.Name())

			bare, err := model.NewBuilder().Backend(string(backend)).Build()
			require.NoError(t, err)
			assert.Nil(t, bare.Tools())
		})
	}
}

func TestNonSuccessStatusIsTransportError(t *testing.T) {
	for _, backend := range model.Backends() {
		t.Run(string(backend), func(t *testing.T) {
			srv, calls := countingServer(t)
			p, err := model.NewBuilder().Backend(string(backend)).APIKey("test-key").BaseURL(srv.URL).Build()
			require.NoError(t, err)

			_, err = p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("Hi")})
			assert.ErrorIs(t, err, llmErrors.ErrTransport)
			assert.False(t, llmErrors.IsRetryable(err))
			assert.GreaterOrEqual(t, calls.Load(), int32(1))
		})
	}
}
