package model

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/harunnryd/llmkit/internal/config"
	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/model/contract"
)

// SecretLookup resolves "secret:<name>" API key references.
type SecretLookup interface {
	Get(ctx context.Context, name string) (string, error)
}

// ProviderInfo describes one registered provider without exposing its key.
type ProviderInfo struct {
	Name      string `json:"name" yaml:"name"`
	Backend   string `json:"backend" yaml:"backend"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	HasKey    bool   `json:"has_key" yaml:"has_key"`
	Default   bool   `json:"default" yaml:"default"`
	Embedding bool   `json:"embedding" yaml:"embedding"`
}

// Registry holds the named providers built from configuration. It does not
// choose between providers; callers ask for one by name.
type Registry struct {
	cfg       config.ModelsConfig
	providers map[string]contract.Provider
	info      map[string]ProviderInfo
	mu        sync.RWMutex
}

// NewRegistry builds every configured entry. Entries that fail to build are
// logged and skipped; it is an error only when none succeed.
func NewRegistry(ctx context.Context, cfg config.ModelsConfig, secrets SecretLookup) (*Registry, error) {
	r := &Registry{
		cfg:       cfg,
		providers: make(map[string]contract.Provider),
		info:      make(map[string]ProviderInfo),
	}

	if err := r.initProviders(ctx, secrets); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) initProviders(ctx context.Context, secrets SecretLookup) error {
	for _, entry := range r.cfg.Registry {
		if _, exists := r.providers[entry.Name]; exists {
			slog.Warn("Duplicate provider name, keeping the first", "name", entry.Name)
			continue
		}

		builder, apiKey, err := BuilderFromEntry(ctx, entry, secrets)
		if err != nil {
			slog.Warn("Failed to configure provider", "name", entry.Name, "backend", entry.Backend, "error", err)
			continue
		}
		provider, err := builder.Build()
		if err != nil {
			slog.Warn("Failed to create provider", "name", entry.Name, "backend", entry.Backend, "error", err)
			continue
		}

		r.providers[entry.Name] = provider
		r.info[entry.Name] = ProviderInfo{
			Name:    entry.Name,
			Backend: entry.Backend,
			Model:   entry.Model,
			HasKey:  apiKey != "",
		}
		slog.Info("Provider initialized", "name", entry.Name, "backend", entry.Backend, "model", entry.Model)
	}

	if len(r.providers) == 0 && len(r.cfg.Registry) > 0 {
		return llmErrors.Internal("no providers initialized")
	}

	return nil
}

// Register adds or replaces a provider under name.
func (r *Registry) Register(name string, provider contract.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[name] = provider
	r.info[name] = ProviderInfo{Name: name, Backend: provider.Name()}
}

func (r *Registry) Get(name string) (contract.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]
	if !ok {
		return nil, llmErrors.NotFound(fmt.Sprintf("provider %s not found", name))
	}
	return provider, nil
}

func (r *Registry) Default() (contract.Provider, error) {
	if r.cfg.Default == "" {
		return nil, llmErrors.NotFound("no default provider configured")
	}
	return r.Get(r.cfg.Default)
}

// Embedding returns the configured embedding provider, or the default one
// when no separate embedding provider is named.
func (r *Registry) Embedding() (contract.EmbeddingProvider, error) {
	name := r.cfg.Embedding
	if name == "" {
		name = r.cfg.Default
	}
	if name == "" {
		return nil, llmErrors.NotFound("no embedding provider configured")
	}
	provider, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// List returns every registered provider, sorted by name.
func (r *Registry) List() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderInfo, 0, len(r.info))
	for name, info := range r.info {
		info.Default = name == r.cfg.Default
		info.Embedding = name == r.cfg.Embedding
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BuilderFromEntry turns one registry entry into a Builder. It resolves
// secret references and loads the schema file; it also returns the
// resolved API key.
func BuilderFromEntry(ctx context.Context, entry config.ModelRegistry, secrets SecretLookup) (*Builder, string, error) {
	apiKey, err := resolveAPIKey(ctx, entry, secrets)
	if err != nil {
		return nil, "", err
	}

	timeout, err := config.DurationOrDefault(entry.RequestTimeout, config.DefaultRequestTimeout)
	if err != nil {
		return nil, "", llmErrors.InvalidInput(fmt.Sprintf("invalid request_timeout for %s: %v", entry.Name, err))
	}

	b := NewBuilder().
		Backend(entry.Backend).
		APIKey(apiKey).
		Model(entry.Model).
		EmbeddingModel(entry.EmbeddingModel).
		BaseURL(entry.BaseURL).
		Timeout(timeout).
		Stream(entry.Stream).
		ReasoningEffort(contract.ReasoningEffort(strings.ToLower(entry.ReasoningEffort))).
		EmbeddingEncodingFormat(entry.EmbeddingEncodingFormat)

	if entry.MaxTokens != 0 {
		b.MaxTokens(entry.MaxTokens)
	}
	if entry.Temperature != nil {
		b.Temperature(float32(*entry.Temperature))
	}
	if entry.System != "" {
		b.System(entry.System)
	}
	if entry.TopP != 0 {
		b.TopP(float32(entry.TopP))
	}
	if entry.TopK != 0 {
		b.TopK(entry.TopK)
	}
	if entry.EmbeddingDimensions != 0 {
		b.EmbeddingDimensions(entry.EmbeddingDimensions)
	}
	if entry.SchemaFile != "" {
		schema, err := contract.LoadStructuredOutputFormat(entry.SchemaFile)
		if err != nil {
			return nil, "", llmErrors.WrapWithCategory(err, "load schema for "+entry.Name, llmErrors.ErrInvalidInput)
		}
		b.Schema(schema)
	}

	return b, apiKey, nil
}

func resolveAPIKey(ctx context.Context, entry config.ModelRegistry, secrets SecretLookup) (string, error) {
	if !config.IsSecretRef(entry.APIKey) {
		return entry.APIKey, nil
	}

	name := config.SecretRefName(entry.APIKey)
	if name == "" {
		return "", llmErrors.InvalidInput(fmt.Sprintf("empty secret reference for %s", entry.Name))
	}
	if secrets == nil {
		return "", llmErrors.InvalidInput(fmt.Sprintf("provider %s references secret %q but no secret store is configured", entry.Name, name))
	}

	key, err := secrets.Get(ctx, name)
	if err != nil {
		return "", llmErrors.Wrap(err, fmt.Sprintf("resolve api key for %s", entry.Name))
	}
	return key, nil
}
