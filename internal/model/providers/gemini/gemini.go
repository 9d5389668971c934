package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/logger"
	"github.com/harunnryd/llmkit/internal/model/contract"

	"google.golang.org/genai"
)

const (
	DefaultModel          = "gemini-2.5-flash"
	DefaultEmbeddingModel = "text-embedding-004"
	providerName          = "gemini"
)

type Config struct {
	APIKey              string
	Model               string
	EmbeddingModel      string
	BaseURL             string
	MaxTokens           *int
	Temperature         *float32
	System              *string
	Timeout             time.Duration
	TopP                *float32
	TopK                *int
	ReasoningEffort     contract.ReasoningEffort
	EmbeddingDimensions *int
	Schema              *contract.StructuredOutputFormat
	Tools               []contract.Tool
	HTTPClient          *http.Client
}

type Provider struct {
	client *genai.Client
	cfg    Config
}

// New builds the genai client. With an empty key no client is created and
// every call fails with ErrAuth.
func New(cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}

	p := &Provider{cfg: cfg}
	if cfg.APIKey == "" {
		return p, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		cc.HTTPOptions.Timeout = &timeout
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, llmErrors.WrapWithCategory(err, "create gemini client", llmErrors.ErrInvalidInput)
	}
	p.client = client
	return p, nil
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) Tools() []contract.Tool {
	return p.cfg.Tools
}

func (p *Provider) checkKey() error {
	if p.cfg.APIKey == "" || p.client == nil {
		return llmErrors.Auth("missing gemini api key")
	}
	return nil
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

	contents, err := toContents(messages)
	if err != nil {
		return nil, err
	}

	config := p.generateConfig()
	if decls, err := toFunctionDeclarations(tools); err != nil {
		return nil, err
	} else if len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if p.cfg.Schema != nil {
		config.ResponseMIMEType = "application/json"
		if len(p.cfg.Schema.Schema) > 0 {
			config.ResponseJsonSchema = p.cfg.Schema.Schema
		}
	}

	slog.Debug("Sending chat request",
		"provider", providerName,
		"model", p.cfg.Model,
		"messages", len(contents),
		"tools", len(tools),
		"request_id", logger.GetRequestID(ctx),
	)

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, config)
	if err != nil {
		return nil, mapError(err, "chat request")
	}

	return toResponse(resp), nil
}

// Complete sends the prompt as a single user turn.
func (p *Provider) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if err := p.checkKey(); err != nil {
		return nil, err
	}

	config := p.generateConfig()
	if req.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if req.Temperature != nil {
		t := *req.Temperature
		config.Temperature = &t
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, mapError(err, "completion request")
	}

	text, ok := toResponse(resp).Text()
	if !ok {
		return nil, llmErrors.Decode(nil, "gemini completion returned no candidates")
	}
	return &contract.CompletionResponse{Text: text}, nil
}

func (p *Provider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := p.checkKey(); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, 0, len(inputs))
	for _, in := range inputs {
		contents = append(contents, genai.NewContentFromText(in, genai.RoleUser))
	}

	var config *genai.EmbedContentConfig
	if p.cfg.EmbeddingDimensions != nil {
		dims := int32(*p.cfg.EmbeddingDimensions)
		config = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}

	slog.Debug("Sending embedding request",
		"provider", providerName,
		"model", p.cfg.EmbeddingModel,
		"inputs", len(inputs),
		"request_id", logger.GetRequestID(ctx),
	)

	resp, err := p.client.Models.EmbedContent(ctx, p.cfg.EmbeddingModel, contents, config)
	if err != nil {
		return nil, mapError(err, "embedding request")
	}
	if resp == nil || len(resp.Embeddings) != len(inputs) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, llmErrors.Decode(nil, fmt.Sprintf("gemini returned %d embeddings for %d inputs", got, len(inputs)))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e != nil {
			out[i] = e.Values
		}
	}
	return out, nil
}

func (p *Provider) generateConfig() *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature: p.cfg.Temperature,
		TopP:        p.cfg.TopP,
	}
	if p.cfg.System != nil {
		config.SystemInstruction = genai.NewContentFromText(*p.cfg.System, genai.RoleUser)
	}
	if p.cfg.MaxTokens != nil {
		config.MaxOutputTokens = int32(*p.cfg.MaxTokens)
	}
	if p.cfg.TopK != nil {
		k := float32(*p.cfg.TopK)
		config.TopK = &k
	}
	if p.cfg.ReasoningEffort != "" {
		config.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingLevel:   genai.ThinkingLevel(strings.ToUpper(string(p.cfg.ReasoningEffort))),
		}
	}
	return config
}

func toContents(messages []contract.ChatMessage) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for i, m := range messages {
		role := genai.RoleUser
		if m.Role() == contract.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		switch t := m.Type().(type) {
		case contract.Text:
		case contract.Image:
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: t.Mime.MimeType(), Data: t.Data}})
		case contract.PDF:
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "application/pdf", Data: t.Data}})
		case contract.ImageURL:
			parts = append(parts, &genai.Part{FileData: &genai.FileData{FileURI: t.URL, MIMEType: guessImageMime(t.URL)}})
		default:
			return nil, llmErrors.Unsupported(fmt.Sprintf("gemini: message type %T in message %d", t, i))
		}

		if m.Content() != "" || len(parts) == 0 {
			parts = append(parts, &genai.Part{Text: m.Content()})
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}

func guessImageMime(url string) string {
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, m := range []contract.ImageMime{contract.ImagePNG, contract.ImageGIF, contract.ImageWEBP} {
		ext := strings.TrimPrefix(m.MimeType(), "image/")
		if strings.HasSuffix(lower, "."+ext) {
			return m.MimeType()
		}
	}
	return contract.ImageJPEG.MimeType()
}

func toFunctionDeclarations(tools []contract.Tool) ([]*genai.FunctionDeclaration, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		b, err := json.Marshal(t.Function.Parameters.ParametersMap())
		if err != nil {
			return nil, llmErrors.WrapWithCategory(err, "encode gemini tool "+t.Function.Name, llmErrors.ErrInvalidInput)
		}
		var schema genai.Schema
		if err := json.Unmarshal(b, &schema); err != nil {
			return nil, llmErrors.WrapWithCategory(err, "convert gemini tool "+t.Function.Name, llmErrors.ErrInvalidInput)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  &schema,
		})
	}
	return decls, nil
}

func toResponse(resp *genai.GenerateContentResponse) *contract.BasicResponse {
	out := &contract.BasicResponse{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	var (
		text     strings.Builder
		thinking strings.Builder
		sawText  bool
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		switch {
		case part.FunctionCall != nil:
			fc := part.FunctionCall
			args := "{}"
			if len(fc.Args) > 0 {
				if b, err := json.Marshal(fc.Args); err == nil {
					args = string(b)
				}
			}
			id := fc.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", len(out.Calls)+1)
			}
			out.Calls = append(out.Calls, contract.ToolCall{
				ID:       id,
				Type:     contract.ToolTypeFunction,
				Function: contract.FunctionCall{Name: fc.Name, Arguments: args},
			})
		case part.Thought:
			thinking.WriteString(part.Text)
		case part.Text != "":
			sawText = true
			text.WriteString(part.Text)
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
	msg := "gemini " + op

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		body := apiErr.Message
		if apiErr.Status != "" {
			body = apiErr.Status + ": " + body
		}
		return llmErrors.Wrap(llmErrors.FromHTTPStatus(providerName, apiErr.Code, []byte(body)), msg)
	}
	return llmErrors.Transport(err, msg)
}
