package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/model/contract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	calls  atomic.Int32
	path   string
	apiKey string
	body   map[string]any
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.calls.Add(1)
		c.path = r.URL.Path
		c.apiKey = r.Header.Get("X-Goog-Api-Key")
		raw, _ := io.ReadAll(r.Body)
		c.body = nil
		_ = json.Unmarshal(raw, &c.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newProvider(t *testing.T, cfg Config) *Provider {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func ptr[T any](v T) *T { return &v }

func asJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

const textReply = `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello!"}]},"finishReason":"STOP"}]}`

func TestMissingKey(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, textReply)
	p := newProvider(t, Config{BaseURL: srv.URL})
	ctx := context.Background()

	_, err := p.Chat(ctx, []contract.ChatMessage{contract.UserText("Hi")})
	assert.ErrorIs(t, err, llmErrors.ErrAuth)
	_, err = p.Complete(ctx, contract.NewCompletionRequest("Hi"))
	assert.ErrorIs(t, err, llmErrors.ErrAuth)
	_, err = p.Embed(ctx, []string{"a"})
	assert.ErrorIs(t, err, llmErrors.ErrAuth)
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestChatRequestShape(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, textReply)
	p := newProvider(t, Config{
		APIKey:      "g-key",
		BaseURL:     srv.URL,
		System:      ptr("Be brief."),
		Temperature: ptr(float32(0.25)),
		MaxTokens:   ptr(100),
	})

	resp, err := p.Chat(context.Background(), []contract.ChatMessage{
		contract.UserText("Hi"),
		contract.AssistantText("Hello"),
		contract.UserText("Again"),
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/models/"+DefaultModel+":generateContent", c.path)
	assert.Equal(t, "g-key", c.apiKey)
	assert.JSONEq(t, `[
		{"role":"user","parts":[{"text":"Hi"}]},
		{"role":"model","parts":[{"text":"Hello"}]},
		{"role":"user","parts":[{"text":"Again"}]}
	]`, asJSON(t, c.body["contents"]))
	assert.JSONEq(t, `{"role":"user","parts":[{"text":"Be brief."}]}`, asJSON(t, c.body["systemInstruction"]))

	gen, ok := c.body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 0.25, gen["temperature"])
	assert.EqualValues(t, 100, gen["maxOutputTokens"])

	assert.Equal(t, "Hello!", resp.String())
	assert.Nil(t, resp.ToolCalls())
}

func TestChatAttachments(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, textReply)
	p := newProvider(t, Config{APIKey: "k", BaseURL: srv.URL})

	_, err := p.Chat(context.Background(), []contract.ChatMessage{
		contract.User().Image(contract.ImagePNG, []byte{1, 2, 3}).Content("What?").Build(),
		contract.User().PDF([]byte("%PDF")).Build(),
		contract.User().ImageURL("https://example.com/cat.webp?x=1").Build(),
	})
	require.NoError(t, err)

	assert.JSONEq(t, `[
		{"role":"user","parts":[{"inlineData":{"mimeType":"image/png","data":"AQID"}},{"text":"What?"}]},
		{"role":"user","parts":[{"inlineData":{"mimeType":"application/pdf","data":"JVBERg=="}}]},
		{"role":"user","parts":[{"fileData":{"fileUri":"https://example.com/cat.webp?x=1","mimeType":"image/webp"}}]}
	]`, asJSON(t, c.body["contents"]))
}

func TestChatStructuredOutput(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, textReply)
	schema, err := contract.ParseStructuredOutputFormat([]byte(`{"name":"Student","schema":{"type":"object","properties":{"age":{"type":"integer"}}}}`))
	require.NoError(t, err)

	p := newProvider(t, Config{APIKey: "k", BaseURL: srv.URL, Schema: schema})
	_, err = p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("Student")})
	require.NoError(t, err)

	gen, ok := c.body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.JSONEq(t, `{"type":"object","properties":{"age":{"type":"integer"}}}`, asJSON(t, gen["responseJsonSchema"]))
}

func TestChatFunctionCallsAndThoughts(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[
		{"text":"weighing options","thought":true},
		{"functionCall":{"name":"get_weather","args":{"city":"Lima"}}},
		{"functionCall":{"id":"fc-2","name":"get_time"}}
	]}}]}`)

	weather := contract.NewFunctionTool("get_weather", "Look up weather", contract.ParametersSchema{
		Properties: map[string]contract.ParameterProperty{"city": {Type: "string", Description: "City"}},
		Required:   []string{"city"},
	})
	p := newProvider(t, Config{APIKey: "k", BaseURL: srv.URL, Tools: []contract.Tool{weather}})

	resp, err := p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("Weather?")})
	require.NoError(t, err)

	tools, ok := c.body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	decls := tools[0].(map[string]any)["functionDeclarations"].([]any)
	require.Len(t, decls, 1)
	assert.Equal(t, "get_weather", decls[0].(map[string]any)["name"])

	_, ok = resp.Text()
	assert.False(t, ok)
	thinking, ok := resp.Thinking()
	assert.True(t, ok)
	assert.Equal(t, "weighing options", thinking)

	calls := resp.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.JSONEq(t, `{"city":"Lima"}`, calls[0].Function.Arguments)
	assert.Equal(t, "fc-2", calls[1].ID)
	assert.Equal(t, "{}", calls[1].Function.Arguments)
}

func TestChatNoCandidates(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"candidates":[]}`)
	p := newProvider(t, Config{APIKey: "k", BaseURL: srv.URL})

	resp, err := p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("Hi")})
	require.NoError(t, err)
	_, ok := resp.Text()
	assert.False(t, ok)

	_, err = p.Complete(context.Background(), contract.NewCompletionRequest("Hi"))
	assert.ErrorIs(t, err, llmErrors.ErrDecode)
}

func TestChatHTTPError(t *testing.T) {
	srv, _ := newServer(t, http.StatusServiceUnavailable, `{"error":{"code":503,"message":"model overloaded","status":"UNAVAILABLE"}}`)
	p := newProvider(t, Config{APIKey: "k", BaseURL: srv.URL})

	_, err := p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("Hi")})
	assert.ErrorIs(t, err, llmErrors.ErrTransport)
	assert.True(t, llmErrors.IsRetryable(err))

	var httpErr *llmErrors.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "model overloaded")
}

func TestEmbed(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, `{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`)
	p := newProvider(t, Config{APIKey: "k", BaseURL: srv.URL, EmbeddingDimensions: ptr(2)})

	vectors, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.InDelta(t, 0.1, vectors[0][0], 1e-6)
	assert.InDelta(t, 0.3, vectors[1][0], 1e-6)
	assert.Equal(t, "/v1beta/models/"+DefaultEmbeddingModel+":batchEmbedContents", c.path)
}

func TestEmbedCountMismatch(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"embeddings":[{"values":[0.1]}]}`)
	p := newProvider(t, Config{APIKey: "k", BaseURL: srv.URL})

	_, err := p.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, llmErrors.ErrDecode)
}
