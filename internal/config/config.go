package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/llmkit/internal/pathutil"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server     ServerConfig     `koanf:"server" yaml:"server"`
	Models     ModelsConfig     `koanf:"models" yaml:"models"`
	Secrets    SecretsConfig    `koanf:"secrets" yaml:"secrets"`
	Index      IndexConfig      `koanf:"index" yaml:"index"`
	Validation ValidationConfig `koanf:"validation" yaml:"validation"`
}

type ServerConfig struct {
	LogLevel string `koanf:"log_level" yaml:"log_level"`
}

type ModelsConfig struct {
	Default   string          `koanf:"default" yaml:"default"`
	Embedding string          `koanf:"embedding" yaml:"embedding"`
	Registry  []ModelRegistry `koanf:"registry" yaml:"registry"`
}

// ModelRegistry is one named provider. Zero numeric values mean "not set";
// Temperature is a pointer because zero is a meaningful temperature.
// APIKey may be a literal key or a "secret:<name>" reference.
type ModelRegistry struct {
	Name                    string   `koanf:"name" yaml:"name"`
	Backend                 string   `koanf:"backend" yaml:"backend"`
	Model                   string   `koanf:"model" yaml:"model,omitempty"`
	EmbeddingModel          string   `koanf:"embedding_model" yaml:"embedding_model,omitempty"`
	APIKey                  string   `koanf:"api_key" yaml:"api_key,omitempty"`
	BaseURL                 string   `koanf:"base_url" yaml:"base_url,omitempty"`
	MaxTokens               int      `koanf:"max_tokens" yaml:"max_tokens,omitempty"`
	Temperature             *float64 `koanf:"temperature" yaml:"temperature,omitempty"`
	System                  string   `koanf:"system" yaml:"system,omitempty"`
	RequestTimeout          string   `koanf:"request_timeout" yaml:"request_timeout,omitempty"`
	Stream                  bool     `koanf:"stream" yaml:"stream,omitempty"`
	TopP                    float64  `koanf:"top_p" yaml:"top_p,omitempty"`
	TopK                    int      `koanf:"top_k" yaml:"top_k,omitempty"`
	ReasoningEffort         string   `koanf:"reasoning_effort" yaml:"reasoning_effort,omitempty"`
	EmbeddingEncodingFormat string   `koanf:"embedding_encoding_format" yaml:"embedding_encoding_format,omitempty"`
	EmbeddingDimensions     int      `koanf:"embedding_dimensions" yaml:"embedding_dimensions,omitempty"`
	SchemaFile              string   `koanf:"schema_file" yaml:"schema_file,omitempty"`
}

type SecretsConfig struct {
	Path        string `koanf:"path" yaml:"path"`
	LockTimeout string `koanf:"lock_timeout" yaml:"lock_timeout"`
	LockRetry   string `koanf:"lock_retry" yaml:"lock_retry"`
}

type IndexConfig struct {
	Path       string `koanf:"path" yaml:"path"`
	Collection string `koanf:"collection" yaml:"collection"`
	BatchSize  int    `koanf:"batch_size" yaml:"batch_size"`
	Compress   bool   `koanf:"compress" yaml:"compress"`
}

type ValidationConfig struct {
	MaxAttempts int `koanf:"max_attempts" yaml:"max_attempts"`
}

const (
	DefaultServerLogLevel        = "info"
	DefaultModelDefault          = "grok"
	DefaultModelEmbedding        = "grok"
	DefaultModelBackend          = "xai"
	DefaultRequestTimeout        = "60s"
	DefaultSecretsLockTimeout    = "5s"
	DefaultSecretsLockRetry      = "50ms"
	DefaultIndexCollection       = "default"
	DefaultIndexBatchSize        = 16
	DefaultValidationMaxAttempts = 3
	DefaultEnvFile               = ".env"
	SecretRefPrefix              = "secret:"
	configDirName                = ".llmkit"
	envPrefix                    = "LLMKIT_"
	defaultConfigFileName        = "config.yaml"
	defaultSecretsFileName       = "secrets.json"
	defaultIndexDirName          = "index"
)

// BackendKeyEnv lists the conventional key variable per backend. Keys found
// there fill registry entries that have none.
var BackendKeyEnv = map[string]string{
	"xai":       "XAI_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"zai":       "ZAI_API_KEY",
}

// Dir is the per-user configuration directory.
func Dir() string {
	return filepath.Join(os.Getenv("HOME"), configDirName)
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.log_level": DefaultServerLogLevel,
		"models.default":   DefaultModelDefault,
		"models.embedding": DefaultModelEmbedding,
		"models.registry": []ModelRegistry{
			{Name: DefaultModelDefault, Backend: DefaultModelBackend, RequestTimeout: DefaultRequestTimeout},
		},
		"secrets.path":            filepath.Join(Dir(), defaultSecretsFileName),
		"secrets.lock_timeout":    DefaultSecretsLockTimeout,
		"secrets.lock_retry":      DefaultSecretsLockRetry,
		"index.path":              filepath.Join(Dir(), defaultIndexDirName),
		"index.collection":        DefaultIndexCollection,
		"index.batch_size":        DefaultIndexBatchSize,
		"index.compress":          false,
		"validation.max_attempts": DefaultValidationMaxAttempts,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := flagValue(cmd, "config")
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		globalPath := filepath.Join(Dir(), defaultConfigFileName)
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	// .env file, never overriding variables already set
	envFile := flagValue(cmd, "env-file")
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Environment Variables: LLMKIT_SERVER_LOG_LEVEL -> server.log_level
	k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i, m := range cfg.Models.Registry {
		if m.Backend == "" {
			cfg.Models.Registry[i].Backend = DefaultModelBackend
		}
		cfg.Models.Registry[i].Backend = strings.ToLower(strings.TrimSpace(cfg.Models.Registry[i].Backend))
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	// Post-Process: Inject standard Env Vars if missing
	injectBackendKeys(&cfg)

	return &cfg, nil
}

func flagValue(cmd *cobra.Command, name string) string {
	if cmd == nil {
		return ""
	}
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return strings.TrimSpace(flag.Value.String())
	}
	return ""
}

func injectBackendKeys(cfg *Config) {
	for i, m := range cfg.Models.Registry {
		if m.APIKey != "" {
			continue
		}
		name, ok := BackendKeyEnv[m.Backend]
		if !ok {
			continue
		}
		if key := os.Getenv(name); key != "" {
			cfg.Models.Registry[i].APIKey = key
		}
	}
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	secretsPath, err := expandConfiguredPath(cfg.Secrets.Path)
	if err != nil {
		return err
	}
	if secretsPath != "" {
		cfg.Secrets.Path = secretsPath
	}

	indexPath, err := expandConfiguredPath(cfg.Index.Path)
	if err != nil {
		return err
	}
	if indexPath != "" {
		cfg.Index.Path = indexPath
	}

	for i := range cfg.Models.Registry {
		schemaFile, err := expandConfiguredPath(cfg.Models.Registry[i].SchemaFile)
		if err != nil {
			return err
		}
		if schemaFile != "" {
			cfg.Models.Registry[i].SchemaFile = schemaFile
		}
	}

	return nil
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	expanded, err := pathutil.Expand(trimmed)
	if err != nil {
		return "", err
	}
	return expanded, nil
}

// IsSecretRef reports whether value names a secret-store entry.
func IsSecretRef(value string) bool {
	return strings.HasPrefix(value, SecretRefPrefix)
}

// SecretRefName returns the store key of a "secret:<name>" reference.
func SecretRefName(value string) string {
	return strings.TrimSpace(strings.TrimPrefix(value, SecretRefPrefix))
}
