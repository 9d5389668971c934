package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/logger"
	"github.com/harunnryd/llmkit/internal/model/contract"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultModel = openai.GPT4oMini

	// Base URLs of OpenAI-compatible backends served by this adapter.
	ZAIBaseURL    = "https://api.z.ai/api/paas/v4"
	OllamaBaseURL = "http://localhost:11434/v1"
)

// Config mirrors the xai adapter configuration. Name labels the backend in
// logs and errors and defaults to "openai". KeyOptional allows an empty key
// for local OpenAI-compatible servers. TopK has no OpenAI equivalent.
type Config struct {
	Name                    string
	APIKey                  string
	KeyOptional             bool
	Model                   string
	BaseURL                 string
	MaxTokens               *int
	Temperature             *float32
	System                  *string
	Timeout                 time.Duration
	Stream                  bool
	TopP                    *float32
	ReasoningEffort         contract.ReasoningEffort
	EmbeddingEncodingFormat string
	EmbeddingDimensions     *int
	Schema                  *contract.StructuredOutputFormat
	Tools                   []contract.Tool
	HTTPClient              *http.Client
}

type Provider struct {
	client *openai.Client
	cfg    Config
}

func New(cfg Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	apiKey := cfg.APIKey
	if apiKey == "" && cfg.KeyOptional {
		apiKey = cfg.Name
	}

	sdkCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		sdkCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		sdkCfg.HTTPClient = cfg.HTTPClient
	} else if cfg.Timeout > 0 {
		sdkCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Provider{client: openai.NewClientWithConfig(sdkCfg), cfg: cfg}
}

func (p *Provider) Name() string {
	return p.cfg.Name
}

func (p *Provider) Tools() []contract.Tool {
	return p.cfg.Tools
}

func (p *Provider) checkKey() error {
	if p.cfg.APIKey == "" && !p.cfg.KeyOptional {
		return llmErrors.Auth(fmt.Sprintf("missing %s api key", p.cfg.Name))
	}
	return nil
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, p.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (p *Provider) Chat(ctx context.Context, messages []contract.ChatMessage) (contract.ChatResponse, error) {
	return contract.ChatDefault(ctx, p, messages)
}

func (p *Provider) ChatWithTools(ctx context.Context, messages []contract.ChatMessage, tools []contract.Tool) (contract.ChatResponse, error) {
	if err := p.checkKey(); err != nil {
		return nil, err
	}
	if tools == nil {
		tools = p.cfg.Tools
	}

	chatMessages, err := p.toChatMessages(messages)
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:           p.cfg.Model,
		Messages:        chatMessages,
		Tools:           toOpenAITools(tools),
		ReasoningEffort: string(p.cfg.ReasoningEffort),
	}
	if p.cfg.MaxTokens != nil {
		req.MaxTokens = *p.cfg.MaxTokens
	}
	if p.cfg.Temperature != nil {
		req.Temperature = *p.cfg.Temperature
	}
	if p.cfg.TopP != nil {
		req.TopP = *p.cfg.TopP
	}
	if s := p.cfg.Schema; s != nil {
		format := &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   s.Name,
			Schema: s.Schema,
		}
		if s.Description != nil {
			format.Description = *s.Description
		}
		if s.Strict != nil {
			format.Strict = *s.Strict
		}
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type:       openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: format,
		}
	}

	slog.Debug("Sending chat request",
		"provider", p.cfg.Name,
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"stream", p.cfg.Stream,
		"request_id", logger.GetRequestID(ctx),
	)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if p.cfg.Stream {
		req.Stream = true
		return p.chatStream(ctx, req)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, p.mapError(err, "chat request")
	}

	out := &contract.BasicResponse{}
	if len(resp.Choices) == 0 {
		return out, nil
	}

	msg := resp.Choices[0].Message
	if msg.Content != "" || len(msg.ToolCalls) == 0 {
		content := msg.Content
		out.Content = &content
	}
	out.Reasoning = msg.ReasoningContent
	for _, tc := range msg.ToolCalls {
		out.Calls = append(out.Calls, fromOpenAIToolCall(tc, len(out.Calls)))
	}

	return out, nil
}

func (p *Provider) chatStream(ctx context.Context, req openai.ChatCompletionRequest) (contract.ChatResponse, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, p.mapError(err, "chat stream")
	}
	defer stream.Close()

	var (
		content   strings.Builder
		reasoning strings.Builder
		sawText   bool
		calls     = make(map[int]*openai.ToolCall)
	)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, p.mapError(err, "chat stream")
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			sawText = true
			content.WriteString(delta.Content)
		}
		reasoning.WriteString(delta.ReasoningContent)

		for i, tc := range delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			buf, ok := calls[idx]
			if !ok {
				buf = &openai.ToolCall{Type: openai.ToolTypeFunction}
				calls[idx] = buf
			}
			if tc.ID != "" {
				buf.ID = tc.ID
			}
			if tc.Function.Name != "" {
				buf.Function.Name = tc.Function.Name
			}
			buf.Function.Arguments += tc.Function.Arguments
		}
	}

	out := &contract.BasicResponse{Reasoning: reasoning.String()}
	if sawText {
		text := content.String()
		out.Content = &text
	}

	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		out.Calls = append(out.Calls, fromOpenAIToolCall(*calls[idx], len(out.Calls)))
	}

	return out, nil
}

func (p *Provider) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if err := p.checkKey(); err != nil {
		return nil, err
	}

	creq := openai.CompletionRequest{
		Model:  p.cfg.Model,
		Prompt: req.Prompt,
	}
	switch {
	case req.MaxTokens != nil:
		creq.MaxTokens = *req.MaxTokens
	case p.cfg.MaxTokens != nil:
		creq.MaxTokens = *p.cfg.MaxTokens
	}
	switch {
	case req.Temperature != nil:
		creq.Temperature = *req.Temperature
	case p.cfg.Temperature != nil:
		creq.Temperature = *p.cfg.Temperature
	}
	if req.Suffix != nil {
		creq.Suffix = *req.Suffix
	}

	slog.Debug("Sending completion request",
		"provider", p.cfg.Name,
		"model", creq.Model,
		"request_id", logger.GetRequestID(ctx),
	)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.CreateCompletion(ctx, creq)
	if errors.Is(err, openai.ErrCompletionUnsupportedModel) {
		return p.completeViaChat(ctx, creq)
	}
	if err != nil {
		return nil, p.mapError(err, "completion request")
	}
	if len(resp.Choices) == 0 {
		return nil, llmErrors.Decode(nil, p.cfg.Name+" completion returned no choices")
	}

	return &contract.CompletionResponse{Text: resp.Choices[0].Text}, nil
}

// completeViaChat serves chat-only models as a single user turn.
func (p *Provider) completeViaChat(ctx context.Context, creq openai.CompletionRequest) (*contract.CompletionResponse, error) {
	prompt, _ := creq.Prompt.(string)
	req := openai.ChatCompletionRequest{
		Model:       creq.Model,
		MaxTokens:   creq.MaxTokens,
		Temperature: creq.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, p.mapError(err, "completion request")
	}
	if len(resp.Choices) == 0 {
		return nil, llmErrors.Decode(nil, p.cfg.Name+" completion returned no choices")
	}

	return &contract.CompletionResponse{Text: resp.Choices[0].Message.Content}, nil
}

func (p *Provider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := p.checkKey(); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Input:          inputs,
		Model:          openai.EmbeddingModel(p.cfg.Model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if p.cfg.EmbeddingEncodingFormat != "" {
		req.EncodingFormat = openai.EmbeddingEncodingFormat(p.cfg.EmbeddingEncodingFormat)
	}
	if p.cfg.EmbeddingDimensions != nil {
		req.Dimensions = *p.cfg.EmbeddingDimensions
	}

	slog.Debug("Sending embedding request",
		"provider", p.cfg.Name,
		"model", p.cfg.Model,
		"inputs", len(inputs),
		"request_id", logger.GetRequestID(ctx),
	)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, p.mapError(err, "embedding request")
	}
	if len(resp.Data) != len(inputs) {
		return nil, llmErrors.Decode(nil, fmt.Sprintf("%s returned %d embeddings for %d inputs", p.cfg.Name, len(resp.Data), len(inputs)))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (p *Provider) toChatMessages(messages []contract.ChatMessage) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if p.cfg.System != nil {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: *p.cfg.System})
	}

	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role() == contract.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		switch t := m.Type().(type) {
		case contract.Text:
			out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content()})
		case contract.ImageURL:
			out = append(out, openai.ChatCompletionMessage{Role: role, MultiContent: imageParts(m.Content(), t.URL)})
		case contract.Image:
			dataURL := fmt.Sprintf("data:%s;base64,%s", t.Mime.MimeType(), base64.StdEncoding.EncodeToString(t.Data))
			out = append(out, openai.ChatCompletionMessage{Role: role, MultiContent: imageParts(m.Content(), dataURL)})
		case contract.PDF:
			return nil, llmErrors.Unsupported(fmt.Sprintf("%s: pdf attachment in message %d", p.cfg.Name, i))
		default:
			return nil, llmErrors.Unsupported(fmt.Sprintf("%s: message type %T", p.cfg.Name, t))
		}
	}
	return out, nil
}

func imageParts(text, url string) []openai.ChatMessagePart {
	parts := make([]openai.ChatMessagePart, 0, 2)
	if text != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
	}
	return append(parts, openai.ChatMessagePart{
		Type:     openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{URL: url},
	})
}

func toOpenAITools(tools []contract.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters.ParametersMap(),
			},
		})
	}
	return out
}

func fromOpenAIToolCall(tc openai.ToolCall, n int) contract.ToolCall {
	id := tc.ID
	if id == "" {
		id = fmt.Sprintf("call_%d", n+1)
	}
	return contract.ToolCall{
		ID:   id,
		Type: contract.ToolTypeFunction,
		Function: contract.FunctionCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		},
	}
}

func (p *Provider) mapError(err error, op string) error {
	msg := fmt.Sprintf("%s %s", p.cfg.Name, op)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return llmErrors.Wrap(llmErrors.FromHTTPStatus(p.cfg.Name, apiErr.HTTPStatusCode, []byte(apiErr.Message)), msg)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return llmErrors.Wrap(llmErrors.FromHTTPStatus(p.cfg.Name, reqErr.HTTPStatusCode, reqErr.Body), msg)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return llmErrors.Decode(err, msg)
	}

	return llmErrors.Transport(err, msg)
}
