package validated

import (
	"context"
	"errors"
	"fmt"
	"testing"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	text  *string
	calls []contract.ToolCall
	err   error
}

type scripted struct {
	steps    []step
	seen     [][]contract.ChatMessage
	complete int
	embed    int
}

func (s *scripted) Name() string           { return "scripted" }
func (s *scripted) Tools() []contract.Tool { return nil }

func (s *scripted) Chat(ctx context.Context, msgs []contract.ChatMessage) (contract.ChatResponse, error) {
	return contract.ChatDefault(ctx, s, msgs)
}

func (s *scripted) ChatWithTools(_ context.Context, msgs []contract.ChatMessage, _ []contract.Tool) (contract.ChatResponse, error) {
	s.seen = append(s.seen, msgs)
	st := s.steps[len(s.seen)-1]
	if st.err != nil {
		return nil, st.err
	}
	return &contract.BasicResponse{Content: st.text, Calls: st.calls}, nil
}

func (s *scripted) Complete(context.Context, contract.CompletionRequest) (*contract.CompletionResponse, error) {
	s.complete++
	return &contract.CompletionResponse{Text: "done"}, nil
}

func (s *scripted) Embed(context.Context, []string) ([][]float32, error) {
	s.embed++
	return [][]float32{{1}}, nil
}

func text(s string) *string { return &s }

func TestValidReplyOnFirstAttempt(t *testing.T) {
	inner := &scripted{steps: []step{{text: text(`{"ok":true}`)}}}
	p := New(inner, Config{Validator: JSON})

	resp, err := p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("json please")})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, contract.TextOrEmpty(resp))
	assert.Len(t, inner.seen, 1)
}

func TestInvalidReplyIsSentBackWithFeedback(t *testing.T) {
	inner := &scripted{steps: []step{
		{text: text("sure, here it is")},
		{text: text("```json\n{\"ok\":true}\n```")},
	}}
	p := New(inner, Config{Validator: JSON, MaxAttempts: 3})

	resp, err := p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("json please")})
	require.NoError(t, err)
	assert.Contains(t, contract.TextOrEmpty(resp), `{"ok":true}`)

	require.Len(t, inner.seen, 2)
	second := inner.seen[1]
	require.Len(t, second, 3)
	assert.Equal(t, contract.RoleAssistant, second[1].Role())
	assert.Equal(t, "sure, here it is", second[1].Content())
	assert.Equal(t, contract.RoleUser, second[2].Role())
	assert.Contains(t, second[2].Content(), "not valid JSON")

	// The caller's slice is untouched.
	assert.Len(t, inner.seen[0], 1)
}

func TestValidationExhausted(t *testing.T) {
	inner := &scripted{steps: []step{{text: text("a")}, {text: text("b")}}}
	p := New(inner, Config{Validator: JSON, MaxAttempts: 2})

	_, err := p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("x")})
	assert.ErrorIs(t, err, llmErrors.ErrInvalidModelOutput)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Len(t, inner.seen, 2)
}

func TestTransientErrorIsRetried(t *testing.T) {
	transient := llmErrors.FromHTTPStatus("xai", 503, []byte("busy"))
	inner := &scripted{steps: []step{{err: transient}, {text: text("fine")}}}
	p := New(inner, Config{Validator: NonEmpty})

	resp, err := p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("x")})
	require.NoError(t, err)
	assert.Equal(t, "fine", contract.TextOrEmpty(resp))
	assert.Len(t, inner.seen, 2)
	assert.Len(t, inner.seen[1], 1)
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	authErr := llmErrors.Auth("missing xai api key")
	inner := &scripted{steps: []step{{err: authErr}}}
	p := New(inner, Config{})

	_, err := p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("x")})
	assert.ErrorIs(t, err, llmErrors.ErrAuth)
	assert.Len(t, inner.seen, 1)
}

func TestTransientErrorOnLastAttempt(t *testing.T) {
	transient := llmErrors.FromHTTPStatus("xai", 429, nil)
	inner := &scripted{steps: []step{{err: transient}, {err: transient}}}
	p := New(inner, Config{MaxAttempts: 2})

	_, err := p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("x")})
	var httpErr *llmErrors.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 429, httpErr.StatusCode)
}

func TestToolCallsSkipValidation(t *testing.T) {
	calls := []contract.ToolCall{{ID: "call_1", Type: contract.ToolTypeFunction, Function: contract.FunctionCall{Name: "f", Arguments: "{}"}}}
	inner := &scripted{steps: []step{{calls: calls}}}
	p := New(inner, Config{Validator: JSON})

	resp, err := p.Chat(context.Background(), []contract.ChatMessage{contract.UserText("x")})
	require.NoError(t, err)
	assert.Len(t, resp.ToolCalls(), 1)
}

func TestBackoffHonorsContext(t *testing.T) {
	transient := llmErrors.FromHTTPStatus("xai", 503, nil)
	inner := &scripted{steps: []step{{err: transient}, {text: text("late")}}}
	p := New(inner, Config{MaxAttempts: 2, Backoff: 1 << 40})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Chat(ctx, []contract.ChatMessage{contract.UserText("x")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, inner.seen, 1)
}

func TestCompleteAndEmbedPassThrough(t *testing.T) {
	inner := &scripted{}
	p := New(inner, Config{Validator: func(string) error { return fmt.Errorf("never") }})

	out, err := p.Complete(context.Background(), contract.NewCompletionRequest("x"))
	require.NoError(t, err)
	assert.Equal(t, "done", out.Text)

	_, err = p.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.complete)
	assert.Equal(t, 1, inner.embed)
	assert.Equal(t, "scripted", p.Name())
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		"plain":                     "plain",
		"```json\n{\"a\":1}\n```":   `{"a":1}`,
		"```\n[1,2]\n```":           "[1,2]",
		"  ```json\n  {}  \n```  ": "{}",
		"```":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripCodeFence(in), "input %q", in)
	}
}
