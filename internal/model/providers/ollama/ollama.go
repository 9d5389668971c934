// Package ollama drives a local Ollama server through langchaingo's native
// client (/api/chat, /api/embed). Tool calling is not exposed by that client;
// use the openai backend with the OpenAI-compatible /v1 base URL for tools.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/logger"
	"github.com/harunnryd/llmkit/internal/model/contract"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	DefaultModel   = "llama3.2"
	DefaultBaseURL = "http://localhost:11434"
	providerName   = "ollama"
)

type Config struct {
	Model           string
	BaseURL         string
	MaxTokens       *int
	Temperature     *float32
	System          *string
	Timeout         time.Duration
	TopP            *float32
	TopK            *int
	ReasoningEffort contract.ReasoningEffort
	Schema          *contract.StructuredOutputFormat
	Tools           []contract.Tool
	HTTPClient      *http.Client
}

type Provider struct {
	llm    *ollama.LLM
	cfg    Config
	mapper llmErrors.ErrorMapper
}

func New(cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []ollama.Option{
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithHTTPClient(client),
	}
	if cfg.Schema != nil {
		opts = append(opts, ollama.WithFormat("json"))
	}
	if cfg.ReasoningEffort != "" {
		opts = append(opts, ollama.WithThink(true))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, llmErrors.WrapWithCategory(err, "create ollama client", llmErrors.ErrInvalidInput)
	}

	return &Provider{llm: llm, cfg: cfg, mapper: llmErrors.NewDefaultErrorMapper()}, nil
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) Tools() []contract.Tool {
	return p.cfg.Tools
}

func (p *Provider) Chat(ctx context.Context, messages []contract.ChatMessage) (contract.ChatResponse, error) {
	return contract.ChatDefault(ctx, p, messages)
}

func (p *Provider) ChatWithTools(ctx context.Context, messages []contract.ChatMessage, tools []contract.Tool) (contract.ChatResponse, error) {
	if tools == nil {
		tools = p.cfg.Tools
	}
	if len(tools) > 0 {
		return nil, llmErrors.Unsupported("ollama: tool calling (use the openai backend with the /v1 base url)")
	}

	content, err := p.toMessageContent(messages)
	if err != nil {
		return nil, err
	}

	slog.Debug("Sending chat request",
		"provider", providerName,
		"model", p.cfg.Model,
		"messages", len(content),
		"request_id", logger.GetRequestID(ctx),
	)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.llm.GenerateContent(ctx, content, p.callOptions(nil, nil)...)
	if err != nil {
		return nil, p.mapError(err, "chat request")
	}

	out := &contract.BasicResponse{}
	if resp != nil && len(resp.Choices) > 0 && resp.Choices[0] != nil {
		text := resp.Choices[0].Content
		out.Content = &text
	}
	return out, nil
}

func (p *Provider) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	text, err := llms.GenerateFromSinglePrompt(ctx, p.llm, req.Prompt, p.callOptions(req.MaxTokens, req.Temperature)...)
	if err != nil {
		return nil, p.mapError(err, "completion request")
	}
	return &contract.CompletionResponse{Text: text}, nil
}

func (p *Provider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	slog.Debug("Sending embedding request",
		"provider", providerName,
		"model", p.cfg.Model,
		"inputs", len(inputs),
		"request_id", logger.GetRequestID(ctx),
	)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	vectors, err := p.llm.CreateEmbedding(ctx, inputs)
	if err != nil {
		return nil, p.mapError(err, "embedding request")
	}
	if len(vectors) != len(inputs) {
		return nil, llmErrors.Decode(nil, fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(vectors), len(inputs)))
	}
	return vectors, nil
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, p.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (p *Provider) callOptions(maxTokens *int, temperature *float32) []llms.CallOption {
	var opts []llms.CallOption

	if maxTokens == nil {
		maxTokens = p.cfg.MaxTokens
	}
	if maxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*maxTokens))
	}
	if temperature == nil {
		temperature = p.cfg.Temperature
	}
	if temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*temperature)))
	}
	if p.cfg.TopP != nil {
		opts = append(opts, llms.WithTopP(float64(*p.cfg.TopP)))
	}
	if p.cfg.TopK != nil {
		opts = append(opts, llms.WithTopK(*p.cfg.TopK))
	}
	return opts
}

func (p *Provider) toMessageContent(messages []contract.ChatMessage) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(messages)+1)
	if p.cfg.System != nil {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, *p.cfg.System))
	}

	for i, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role() == contract.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}

		parts := []llms.ContentPart{llms.TextPart(m.Content())}
		switch t := m.Type().(type) {
		case contract.Text:
		case contract.Image:
			parts = append(parts, llms.BinaryPart(t.Mime.MimeType(), t.Data))
		case contract.ImageURL:
			return nil, llmErrors.Unsupported(fmt.Sprintf("ollama: image url in message %d", i))
		case contract.PDF:
			return nil, llmErrors.Unsupported(fmt.Sprintf("ollama: pdf attachment in message %d", i))
		default:
			return nil, llmErrors.Unsupported(fmt.Sprintf("ollama: message type %T", t))
		}

		out = append(out, llms.MessageContent{Role: role, Parts: parts})
	}
	return out, nil
}

func (p *Provider) mapError(err error, op string) error {
	return llmErrors.Wrap(p.mapper.MapError(err), "ollama "+op)
}
