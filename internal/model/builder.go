package model

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/model/contract"
	anthropicProvider "github.com/harunnryd/llmkit/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/llmkit/internal/model/providers/gemini"
	ollamaProvider "github.com/harunnryd/llmkit/internal/model/providers/ollama"
	openaiProvider "github.com/harunnryd/llmkit/internal/model/providers/openai"
	xaiProvider "github.com/harunnryd/llmkit/internal/model/providers/xai"
)

// Backend names a vendor API family.
type Backend string

const (
	BackendXAI          Backend = "xai"
	BackendOpenAI       Backend = "openai"
	BackendAnthropic    Backend = "anthropic"
	BackendGemini       Backend = "gemini"
	BackendOllama       Backend = "ollama"
	BackendOllamaOpenAI Backend = "ollama-openai"
	BackendZAI          Backend = "zai"
)

const ZAIDefaultModel = "glm-5"

var backends = []Backend{
	BackendXAI,
	BackendOpenAI,
	BackendAnthropic,
	BackendGemini,
	BackendOllama,
	BackendOllamaOpenAI,
	BackendZAI,
}

// Backends lists every backend Build understands.
func Backends() []Backend {
	out := make([]Backend, len(backends))
	copy(out, backends)
	return out
}

func ParseBackend(name string) (Backend, error) {
	candidate := Backend(strings.ToLower(strings.TrimSpace(name)))
	if candidate == "" {
		return "", llmErrors.InvalidInput("backend is required")
	}
	for _, b := range backends {
		if b == candidate {
			return b, nil
		}
	}
	return "", llmErrors.InvalidInput(fmt.Sprintf("unknown backend %q", name))
}

// RequiresKey reports whether the vendor rejects unauthenticated calls.
func (b Backend) RequiresKey() bool {
	switch b {
	case BackendOllama, BackendOllamaOpenAI:
		return false
	default:
		return true
	}
}

// Builder collects provider settings and validates them once in Build.
// Settings a backend has no use for are ignored by that backend.
type Builder struct {
	backend             Backend
	backendErr          error
	apiKey              string
	model               string
	embeddingModel      string
	baseURL             string
	maxTokens           *int
	temperature         *float32
	system              *string
	timeout             time.Duration
	stream              bool
	topP                *float32
	topK                *int
	reasoningEffort     contract.ReasoningEffort
	encodingFormat      string
	embeddingDimensions *int
	schema              *contract.StructuredOutputFormat
	tools               []contract.Tool
	httpClient          *http.Client
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Backend(name string) *Builder {
	b.backend, b.backendErr = ParseBackend(name)
	return b
}

func (b *Builder) APIKey(key string) *Builder {
	b.apiKey = key
	return b
}

func (b *Builder) Model(model string) *Builder {
	b.model = model
	return b
}

// EmbeddingModel is used by backends with a separate embedding model (gemini).
func (b *Builder) EmbeddingModel(model string) *Builder {
	b.embeddingModel = model
	return b
}

func (b *Builder) BaseURL(url string) *Builder {
	b.baseURL = url
	return b
}

func (b *Builder) MaxTokens(n int) *Builder {
	b.maxTokens = &n
	return b
}

func (b *Builder) Temperature(t float32) *Builder {
	b.temperature = &t
	return b
}

func (b *Builder) System(prompt string) *Builder {
	b.system = &prompt
	return b
}

func (b *Builder) Timeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

func (b *Builder) Stream(stream bool) *Builder {
	b.stream = stream
	return b
}

func (b *Builder) TopP(p float32) *Builder {
	b.topP = &p
	return b
}

func (b *Builder) TopK(k int) *Builder {
	b.topK = &k
	return b
}

func (b *Builder) ReasoningEffort(effort contract.ReasoningEffort) *Builder {
	b.reasoningEffort = effort
	return b
}

func (b *Builder) EmbeddingEncodingFormat(format string) *Builder {
	b.encodingFormat = format
	return b
}

func (b *Builder) EmbeddingDimensions(n int) *Builder {
	b.embeddingDimensions = &n
	return b
}

func (b *Builder) Schema(schema *contract.StructuredOutputFormat) *Builder {
	b.schema = schema.Clone()
	return b
}

func (b *Builder) Tools(tools ...contract.Tool) *Builder {
	b.tools = append([]contract.Tool(nil), tools...)
	return b
}

func (b *Builder) HTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// Build validates the settings and constructs the backend adapter. A
// missing API key is not a build error; the adapter reports ErrAuth per call.
func (b *Builder) Build() (contract.Provider, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	switch b.backend {
	case BackendXAI:
		return xaiProvider.New(xaiProvider.Config{
			APIKey:                  b.apiKey,
			Model:                   b.model,
			BaseURL:                 b.baseURL,
			MaxTokens:               b.maxTokens,
			Temperature:             b.temperature,
			System:                  b.system,
			Timeout:                 b.timeout,
			Stream:                  b.stream,
			TopP:                    b.topP,
			TopK:                    b.topK,
			ReasoningEffort:         b.reasoningEffort,
			EmbeddingEncodingFormat: b.encodingFormat,
			EmbeddingDimensions:     b.embeddingDimensions,
			Schema:                  b.schema,
			Tools:                   b.tools,
			HTTPClient:              b.httpClient,
		}), nil

	case BackendOpenAI, BackendOllamaOpenAI, BackendZAI:
		cfg := b.openaiConfig()
		switch b.backend {
		case BackendOllamaOpenAI:
			cfg.Name = string(BackendOllama)
			cfg.KeyOptional = true
			if cfg.BaseURL == "" {
				cfg.BaseURL = openaiProvider.OllamaBaseURL
			}
		case BackendZAI:
			cfg.Name = string(BackendZAI)
			if cfg.BaseURL == "" {
				cfg.BaseURL = openaiProvider.ZAIBaseURL
			}
			if cfg.Model == "" {
				cfg.Model = ZAIDefaultModel
			}
		}
		return openaiProvider.New(cfg), nil

	case BackendAnthropic:
		return anthropicProvider.New(anthropicProvider.Config{
			APIKey:          b.apiKey,
			Model:           b.model,
			BaseURL:         b.baseURL,
			MaxTokens:       b.maxTokens,
			Temperature:     b.temperature,
			System:          b.system,
			Timeout:         b.timeout,
			Stream:          b.stream,
			TopP:            b.topP,
			TopK:            b.topK,
			ReasoningEffort: b.reasoningEffort,
			Schema:          b.schema,
			Tools:           b.tools,
			HTTPClient:      b.httpClient,
		}), nil

	case BackendGemini:
		p, err := geminiProvider.New(geminiProvider.Config{
			APIKey:              b.apiKey,
			Model:               b.model,
			EmbeddingModel:      b.embeddingModel,
			BaseURL:             b.baseURL,
			MaxTokens:           b.maxTokens,
			Temperature:         b.temperature,
			System:              b.system,
			Timeout:             b.timeout,
			TopP:                b.topP,
			TopK:                b.topK,
			ReasoningEffort:     b.reasoningEffort,
			EmbeddingDimensions: b.embeddingDimensions,
			Schema:              b.schema,
			Tools:               b.tools,
			HTTPClient:          b.httpClient,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case BackendOllama:
		p, err := ollamaProvider.New(ollamaProvider.Config{
			Model:           b.model,
			BaseURL:         b.baseURL,
			MaxTokens:       b.maxTokens,
			Temperature:     b.temperature,
			System:          b.system,
			Timeout:         b.timeout,
			TopP:            b.topP,
			TopK:            b.topK,
			ReasoningEffort: b.reasoningEffort,
			Schema:          b.schema,
			Tools:           b.tools,
			HTTPClient:      b.httpClient,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, llmErrors.InvalidInput(fmt.Sprintf("unknown backend %q", b.backend))
	}
}

func (b *Builder) openaiConfig() openaiProvider.Config {
	return openaiProvider.Config{
		Name:                    string(b.backend),
		APIKey:                  b.apiKey,
		Model:                   b.model,
		BaseURL:                 b.baseURL,
		MaxTokens:               b.maxTokens,
		Temperature:             b.temperature,
		System:                  b.system,
		Timeout:                 b.timeout,
		Stream:                  b.stream,
		TopP:                    b.topP,
		ReasoningEffort:         b.reasoningEffort,
		EmbeddingEncodingFormat: b.encodingFormat,
		EmbeddingDimensions:     b.embeddingDimensions,
		Schema:                  b.schema,
		Tools:                   b.tools,
		HTTPClient:              b.httpClient,
	}
}

func (b *Builder) validate() error {
	if b.backendErr != nil {
		return b.backendErr
	}
	if b.backend == "" {
		return llmErrors.InvalidInput("backend is required")
	}
	if b.temperature != nil && (*b.temperature < 0 || *b.temperature > 2) {
		return llmErrors.InvalidInput(fmt.Sprintf("temperature %v outside [0, 2]", *b.temperature))
	}
	if b.topP != nil && (*b.topP < 0 || *b.topP > 1) {
		return llmErrors.InvalidInput(fmt.Sprintf("top_p %v outside [0, 1]", *b.topP))
	}
	if b.maxTokens != nil && *b.maxTokens < 0 {
		return llmErrors.InvalidInput("max_tokens must not be negative")
	}
	if b.topK != nil && *b.topK < 0 {
		return llmErrors.InvalidInput("top_k must not be negative")
	}
	if b.embeddingDimensions != nil && *b.embeddingDimensions < 0 {
		return llmErrors.InvalidInput("embedding_dimensions must not be negative")
	}
	if b.timeout < 0 {
		return llmErrors.InvalidInput("timeout must not be negative")
	}
	if !b.reasoningEffort.Valid() {
		return llmErrors.InvalidInput(fmt.Sprintf("unknown reasoning effort %q", b.reasoningEffort))
	}
	for _, t := range b.tools {
		if strings.TrimSpace(t.Function.Name) == "" {
			return llmErrors.InvalidInput("tool function name is required")
		}
	}
	if b.backend == BackendOllama && len(b.tools) > 0 {
		return llmErrors.InvalidInput("the ollama backend does not support tools; use ollama-openai")
	}
	return nil
}
