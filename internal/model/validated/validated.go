// Package validated wraps a provider so chat replies are checked before they
// reach the caller. A reply that fails validation is sent back to the model
// with the validator's message; transient transport errors are retried.
package validated

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/logger"
	"github.com/harunnryd/llmkit/internal/model/contract"
)

const DefaultMaxAttempts = 3

// Validator inspects the reply text and returns an error describing what is
// wrong with it.
type Validator func(text string) error

type Config struct {
	Validator   Validator
	MaxAttempts int
	// Backoff is the pause before retrying a transient error.
	Backoff time.Duration
}

type Provider struct {
	inner contract.Provider
	cfg   Config
}

func New(inner contract.Provider, cfg Config) *Provider {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Validator == nil {
		cfg.Validator = func(string) error { return nil }
	}
	return &Provider{inner: inner, cfg: cfg}
}

func (p *Provider) Name() string {
	return p.inner.Name()
}

func (p *Provider) Tools() []contract.Tool {
	return p.inner.Tools()
}

func (p *Provider) Chat(ctx context.Context, messages []contract.ChatMessage) (contract.ChatResponse, error) {
	return contract.ChatDefault(ctx, p, messages)
}

// ChatWithTools returns the first reply that passes validation. Replies that
// request tool calls are returned as they are.
func (p *Provider) ChatWithTools(ctx context.Context, messages []contract.ChatMessage, tools []contract.Tool) (contract.ChatResponse, error) {
	conversation := append([]contract.ChatMessage(nil), messages...)
	requestID := logger.GetRequestID(ctx)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		resp, err := p.inner.ChatWithTools(ctx, conversation, tools)
		if err != nil {
			if !llmErrors.IsRetryable(err) || attempt == p.cfg.MaxAttempts {
				return nil, err
			}
			slog.Warn("Transient provider error, retrying",
				"provider", p.inner.Name(),
				"attempt", attempt,
				"error", err,
				"request_id", requestID,
			)
			if err := p.wait(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if len(resp.ToolCalls()) > 0 {
			return resp, nil
		}

		text, _ := resp.Text()
		verr := p.cfg.Validator(text)
		if verr == nil {
			return resp, nil
		}

		lastErr = verr
		slog.Warn("Response failed validation",
			"provider", p.inner.Name(),
			"attempt", attempt,
			"error", verr,
			"request_id", requestID,
		)
		conversation = append(conversation,
			contract.AssistantText(text),
			contract.UserText(Feedback(verr)),
		)
	}

	return nil, llmErrors.WrapWithCategory(lastErr,
		fmt.Sprintf("response failed validation after %d attempts", p.cfg.MaxAttempts),
		llmErrors.ErrInvalidModelOutput)
}

func (p *Provider) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	return p.inner.Complete(ctx, req)
}

func (p *Provider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return p.inner.Embed(ctx, inputs)
}

func (p *Provider) wait(ctx context.Context) error {
	if p.cfg.Backoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.cfg.Backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Feedback is the user message sent after a reply fails validation.
func Feedback(err error) string {
	return fmt.Sprintf("Your previous answer was rejected: %v. Reply again and fix this problem.", err)
}

// JSON accepts replies that are a single JSON value, optionally inside a
// markdown code fence.
func JSON(text string) error {
	candidate := StripCodeFence(text)
	if candidate == "" {
		return fmt.Errorf("reply is empty, expected JSON")
	}
	if !json.Valid([]byte(candidate)) {
		return fmt.Errorf("reply is not valid JSON")
	}
	return nil
}

func NonEmpty(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("reply is empty")
	}
	return nil
}

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	} else {
		trimmed = ""
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
