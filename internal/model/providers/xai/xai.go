// Package xai talks to the xAI (Grok) REST API directly over net/http.
//
// It is the reference adapter: every other backend follows the same steps
// (credential check, message mapping, system prompt injection, response
// format envelope, single POST, decode into a ChatResponse).
package xai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/logger"
	"github.com/harunnryd/llmkit/internal/model/contract"
)

const (
	DefaultBaseURL = "https://api.x.ai/v1"
	DefaultModel   = "grok-2-latest"

	defaultEmbeddingEncodingFormat = "float"
	providerName                   = "xai"
	maxResponseBytes               = 8 << 20
)

// Config is fixed at construction; nil pointers mean "not set" and the
// matching request field is omitted.
type Config struct {
	APIKey                  string
	Model                   string
	BaseURL                 string
	MaxTokens               *int
	Temperature             *float32
	System                  *string
	Timeout                 time.Duration
	Stream                  bool
	TopP                    *float32
	TopK                    *int
	ReasoningEffort         contract.ReasoningEffort
	EmbeddingEncodingFormat string
	EmbeddingDimensions     *int
	Schema                  *contract.StructuredOutputFormat
	Tools                   []contract.Tool
	HTTPClient              *http.Client
}

type Provider struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
		if cfg.Timeout > 0 {
			client.Timeout = cfg.Timeout
		}
	}

	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) Tools() []contract.Tool {
	return p.cfg.Tools
}

// --- wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

type responseType string

const (
	responseTypeText       responseType = "text"
	responseTypeJSONSchema responseType = "json_schema"
	responseTypeJSONObject responseType = "json_object"
)

type responseFormat struct {
	Type       responseType                     `json:"type"`
	JSONSchema *contract.StructuredOutputFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model           string          `json:"model"`
	Messages        []chatMessage   `json:"messages"`
	MaxTokens       *int            `json:"max_tokens,omitempty"`
	Temperature     *float32        `json:"temperature,omitempty"`
	Stream          bool            `json:"stream"`
	TopP            *float32        `json:"top_p,omitempty"`
	TopK            *int            `json:"top_k,omitempty"`
	ResponseFormat  *responseFormat `json:"response_format,omitempty"`
	Tools           []contract.Tool `json:"tools,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatResponseMessage `json:"message"`
}

type chatResponseMessage struct {
	Content          *string             `json:"content"`
	ReasoningContent string              `json:"reasoning_content,omitempty"`
	ToolCalls        []contract.ToolCall `json:"tool_calls,omitempty"`
}

func (r *chatResponse) Text() (string, bool) {
	if len(r.Choices) == 0 || r.Choices[0].Message.Content == nil {
		return "", false
	}
	return *r.Choices[0].Message.Content, true
}

func (r *chatResponse) ToolCalls() []contract.ToolCall {
	if len(r.Choices) == 0 || len(r.Choices[0].Message.ToolCalls) == 0 {
		return nil
	}
	calls := make([]contract.ToolCall, len(r.Choices[0].Message.ToolCalls))
	copy(calls, r.Choices[0].Message.ToolCalls)
	return calls
}

func (r *chatResponse) Thinking() (string, bool) {
	if len(r.Choices) == 0 || r.Choices[0].Message.ReasoningContent == "" {
		return "", false
	}
	return r.Choices[0].Message.ReasoningContent, true
}

func (r *chatResponse) String() string {
	text, _ := r.Text()
	return text
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
	Dimensions     *int     `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
}

// --- capabilities ---

func (p *Provider) Chat(ctx context.Context, messages []contract.ChatMessage) (contract.ChatResponse, error) {
	return contract.ChatDefault(ctx, p, messages)
}

// ChatWithTools sends one chat completion request. A nil tools slice falls
// back to the configured default tools.
func (p *Provider) ChatWithTools(ctx context.Context, messages []contract.ChatMessage, tools []contract.Tool) (contract.ChatResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, llmErrors.Auth("missing xai api key")
	}
	if tools == nil {
		tools = p.cfg.Tools
	}

	body, err := p.buildChatRequest(messages, tools)
	if err != nil {
		return nil, err
	}

	slog.Debug("Sending chat request",
		"provider", providerName,
		"model", body.Model,
		"messages", len(body.Messages),
		"tools", len(body.Tools),
		"stream", body.Stream,
		"request_id", logger.GetRequestID(ctx),
	)

	if body.Stream {
		return p.chatStream(ctx, body)
	}

	raw, err := p.post(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, llmErrors.Decode(err, "decode xai chat response")
	}
	assignToolCallIDs(&resp)

	return &resp, nil
}

// Complete runs the prompt as a single user turn on the chat endpoint.
func (p *Provider) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, llmErrors.Auth("missing xai api key")
	}

	body, err := p.buildChatRequest([]contract.ChatMessage{contract.UserText(req.Prompt)}, nil)
	if err != nil {
		return nil, err
	}
	body.Stream = false
	body.ResponseFormat = nil
	if req.MaxTokens != nil {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		body.Temperature = req.Temperature
	}

	raw, err := p.post(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, llmErrors.Decode(err, "decode xai completion response")
	}
	text, ok := resp.Text()
	if !ok {
		return nil, llmErrors.Decode(nil, "xai completion returned no choices")
	}

	return &contract.CompletionResponse{Text: text}, nil
}

func (p *Provider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if p.cfg.APIKey == "" {
		return nil, llmErrors.Auth("missing xai api key")
	}
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	format := p.cfg.EmbeddingEncodingFormat
	if format == "" {
		format = defaultEmbeddingEncodingFormat
	}

	body := embeddingRequest{
		Model:          p.cfg.Model,
		Input:          inputs,
		EncodingFormat: format,
		Dimensions:     p.cfg.EmbeddingDimensions,
	}

	slog.Debug("Sending embedding request",
		"provider", providerName,
		"model", body.Model,
		"inputs", len(inputs),
		"request_id", logger.GetRequestID(ctx),
	)

	raw, err := p.post(ctx, "/embeddings", body)
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, llmErrors.Decode(err, "decode xai embedding response")
	}
	if len(resp.Data) != len(inputs) {
		return nil, llmErrors.Decode(nil, fmt.Sprintf("xai returned %d embeddings for %d inputs", len(resp.Data), len(inputs)))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// --- request building ---

func (p *Provider) buildChatRequest(messages []contract.ChatMessage, tools []contract.Tool) (chatRequest, error) {
	wire, err := toXAIMessages(messages)
	if err != nil {
		return chatRequest{}, err
	}

	if p.cfg.System != nil {
		wire = append([]chatMessage{{Role: "system", Content: *p.cfg.System}}, wire...)
	}

	// Schemas are not checked locally; the vendor rejects invalid ones.
	var format *responseFormat
	if p.cfg.Schema != nil {
		format = &responseFormat{
			Type:       responseTypeJSONSchema,
			JSONSchema: p.cfg.Schema,
		}
	}

	return chatRequest{
		Model:           p.cfg.Model,
		Messages:        wire,
		MaxTokens:       p.cfg.MaxTokens,
		Temperature:     p.cfg.Temperature,
		Stream:          p.cfg.Stream,
		TopP:            p.cfg.TopP,
		TopK:            p.cfg.TopK,
		ResponseFormat:  format,
		Tools:           tools,
		ReasoningEffort: string(p.cfg.ReasoningEffort),
	}, nil
}

func toXAIMessages(messages []contract.ChatMessage) ([]chatMessage, error) {
	out := make([]chatMessage, 0, len(messages)+1)
	for i, m := range messages {
		role := "user"
		if m.Role() == contract.RoleAssistant {
			role = "assistant"
		}

		switch t := m.Type().(type) {
		case contract.Text:
			out = append(out, chatMessage{Role: role, Content: m.Content()})
		case contract.ImageURL:
			out = append(out, chatMessage{Role: role, Content: imageParts(m.Content(), t.URL)})
		case contract.Image:
			dataURL := fmt.Sprintf("data:%s;base64,%s", t.Mime.MimeType(), base64.StdEncoding.EncodeToString(t.Data))
			out = append(out, chatMessage{Role: role, Content: imageParts(m.Content(), dataURL)})
		case contract.PDF:
			return nil, llmErrors.Unsupported(fmt.Sprintf("xai: pdf attachment in message %d", i))
		default:
			return nil, llmErrors.Unsupported(fmt.Sprintf("xai: message type %T", t))
		}
	}
	return out, nil
}

func imageParts(text, url string) []contentPart {
	parts := make([]contentPart, 0, 2)
	if text != "" {
		parts = append(parts, contentPart{Type: "text", Text: text})
	}
	return append(parts, contentPart{Type: "image_url", ImageURL: &imageURLPart{URL: url}})
}

func assignToolCallIDs(resp *chatResponse) {
	if len(resp.Choices) == 0 {
		return
	}
	calls := resp.Choices[0].Message.ToolCalls
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call_%d", i+1)
		}
		if calls[i].Type == "" {
			calls[i].Type = contract.ToolTypeFunction
		}
	}
}

// --- transport ---

func (p *Provider) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, llmErrors.WrapWithCategory(err, "encode xai request", llmErrors.ErrInvalidInput)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, llmErrors.WrapWithCategory(err, "build xai request", llmErrors.ErrInvalidInput)
	}

	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, p.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (p *Provider) post(ctx context.Context, path string, body any) ([]byte, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	httpReq, err := p.newRequest(ctx, path, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llmErrors.Transport(err, "xai request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, llmErrors.Transport(err, "read xai response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, llmErrors.FromHTTPStatus(providerName, resp.StatusCode, raw)
	}

	return raw, nil
}

func (p *Provider) chatStream(ctx context.Context, body chatRequest) (contract.ChatResponse, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	httpReq, err := p.newRequest(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llmErrors.Transport(err, "xai request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return nil, llmErrors.FromHTTPStatus(providerName, resp.StatusCode, raw)
	}

	out, err := consumeStream(resp.Body)
	if err != nil {
		return nil, err
	}
	assignToolCallIDs(out)
	return out, nil
}
