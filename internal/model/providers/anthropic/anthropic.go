package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/logger"
	"github.com/harunnryd/llmkit/internal/model/contract"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel     = string(anthropic.ModelClaudeSonnet4_5)
	defaultMaxTokens = 1024
	providerName     = "anthropic"
)

// Config holds the per-provider settings. The Messages API requires
// max_tokens, so MaxTokens falls back to 1024.
type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	MaxTokens       *int
	Temperature     *float32
	System          *string
	Timeout         time.Duration
	Stream          bool
	TopP            *float32
	TopK            *int
	ReasoningEffort contract.ReasoningEffort
	Schema          *contract.StructuredOutputFormat
	Tools           []contract.Tool
	HTTPClient      *http.Client
}

type Provider struct {
	client anthropic.Client
	cfg    Config
}

func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Provider{client: anthropic.NewClient(opts...), cfg: cfg}
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
	if p.cfg.APIKey == "" {
		return nil, llmErrors.Auth("missing anthropic api key")
	}
	if tools == nil {
		tools = p.cfg.Tools
	}

	params, err := p.buildParams(messages, tools)
	if err != nil {
		return nil, err
	}

	slog.Debug("Sending chat request",
		"provider", providerName,
		"model", p.cfg.Model,
		"messages", len(params.Messages),
		"tools", len(params.Tools),
		"stream", p.cfg.Stream,
		"request_id", logger.GetRequestID(ctx),
	)

	var msg *anthropic.Message
	if p.cfg.Stream {
		msg, err = p.stream(ctx, params)
	} else {
		msg, err = p.client.Messages.New(ctx, params)
	}
	if err != nil {
		return nil, mapError(err, "chat request")
	}

	return toResponse(msg), nil
}

func (p *Provider) stream(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		if err := msg.Accumulate(stream.Current()); err != nil {
			return nil, llmErrors.Decode(err, "accumulate anthropic stream")
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Complete sends the prompt as a single user message.
func (p *Provider) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, llmErrors.Auth("missing anthropic api key")
	}

	params, err := p.buildParams([]contract.ChatMessage{contract.UserText(req.Prompt)}, []contract.Tool{})
	if err != nil {
		return nil, err
	}
	params.OutputConfig = anthropic.OutputConfigParam{}
	if req.MaxTokens != nil {
		params.MaxTokens = int64(*req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapError(err, "completion request")
	}

	text, ok := toResponse(msg).Text()
	if !ok {
		return nil, llmErrors.Decode(nil, "anthropic completion returned no text")
	}
	return &contract.CompletionResponse{Text: text}, nil
}

func (p *Provider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, llmErrors.Unsupported("embeddings are not offered by anthropic")
}

func (p *Provider) buildParams(messages []contract.ChatMessage, tools []contract.Tool) (anthropic.MessageNewParams, error) {
	msgs := make([]anthropic.MessageParam, 0, len(messages))
	for i, m := range messages {
		blocks, err := toBlocks(m, i)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		if m.Role() == contract.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(blocks...))
		}
	}

	maxTokens := int64(defaultMaxTokens)
	if p.cfg.MaxTokens != nil {
		maxTokens = int64(*p.cfg.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: maxTokens,
		Messages:  msgs,
		Tools:     toToolParams(tools),
	}
	if p.cfg.System != nil {
		params.System = []anthropic.TextBlockParam{{Text: *p.cfg.System}}
	}
	if p.cfg.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*p.cfg.Temperature))
	}
	if p.cfg.TopP != nil {
		params.TopP = anthropic.Float(float64(*p.cfg.TopP))
	}
	if p.cfg.TopK != nil {
		params.TopK = anthropic.Int(int64(*p.cfg.TopK))
	}
	if p.cfg.ReasoningEffort != "" {
		params.OutputConfig.Effort = anthropic.OutputConfigEffort(p.cfg.ReasoningEffort)
	}
	if p.cfg.Schema != nil {
		value, err := p.cfg.Schema.SchemaValue()
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		schema, ok := value.(map[string]any)
		if !ok {
			return anthropic.MessageNewParams{}, llmErrors.InvalidInput(fmt.Sprintf("schema %q must be a JSON object", p.cfg.Schema.Name))
		}
		params.OutputConfig.Format = anthropic.JSONOutputFormatParam{Schema: schema}
	}

	return params, nil
}

func toBlocks(m contract.ChatMessage, i int) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion

	switch t := m.Type().(type) {
	case contract.Text:
	case contract.Image:
		blocks = append(blocks, anthropic.NewImageBlock(anthropic.Base64ImageSourceParam{
			Data:      base64.StdEncoding.EncodeToString(t.Data),
			MediaType: anthropic.Base64ImageSourceMediaType(t.Mime.MimeType()),
		}))
	case contract.ImageURL:
		blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: t.URL}))
	case contract.PDF:
		blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(t.Data),
		}))
	default:
		return nil, llmErrors.Unsupported(fmt.Sprintf("anthropic: message type %T in message %d", t, i))
	}

	if m.Content() != "" || len(blocks) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(m.Content()))
	}
	return blocks, nil
}

func toToolParams(tools []contract.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var props any = map[string]any{}
		if len(t.Function.Parameters.Properties) > 0 {
			props = t.Function.Parameters.Properties
		}
		tool := anthropic.ToolParam{
			Name: t.Function.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   t.Function.Parameters.Required,
			},
		}
		if t.Function.Description != "" {
			tool.Description = anthropic.String(t.Function.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func toResponse(msg *anthropic.Message) *contract.BasicResponse {
	out := &contract.BasicResponse{}
	if msg == nil {
		return out
	}

	var (
		text     strings.Builder
		thinking strings.Builder
		sawText  bool
	)
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			sawText = true
			text.WriteString(b.Text)
		case anthropic.ThinkingBlock:
			thinking.WriteString(b.Thinking)
		case anthropic.ToolUseBlock:
			args := string(b.Input)
			if args == "" {
				args = "{}"
			}
			out.Calls = append(out.Calls, contract.ToolCall{
				ID:       b.ID,
				Type:     contract.ToolTypeFunction,
				Function: contract.FunctionCall{Name: b.Name, Arguments: args},
			})
		}
	}

	if sawText {
		s := text.String()
		out.Content = &s
	}
	out.Reasoning = thinking.String()
	return out
}

func mapError(err error, op string) error {
	msg := "anthropic " + op

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return llmErrors.Wrap(llmErrors.FromHTTPStatus(providerName, apiErr.StatusCode, []byte(apiErr.RawJSON())), msg)
	}
	if llmErrors.IsCategory(err, llmErrors.ErrDecode) {
		return err
	}
	return llmErrors.Transport(err, msg)
}
