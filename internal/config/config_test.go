package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, name := range BackendKeyEnv {
		t.Setenv(name, "")
	}
}

func commandWithConfig(t *testing.T, configPath string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	cmd.Flags().String("env-file", "", "dotenv file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}
	return cmd
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearKeyEnv(t)

	// We pass nil for cmd to skip flags
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.LogLevel != DefaultServerLogLevel {
		t.Errorf("Expected default log level %s, got %s", DefaultServerLogLevel, cfg.Server.LogLevel)
	}
	if cfg.Models.Default != DefaultModelDefault {
		t.Errorf("Expected default model %s, got %s", DefaultModelDefault, cfg.Models.Default)
	}
	if cfg.Models.Embedding != DefaultModelEmbedding {
		t.Errorf("Expected default embedding model %s, got %s", DefaultModelEmbedding, cfg.Models.Embedding)
	}
	if len(cfg.Models.Registry) != 1 {
		t.Fatalf("Expected 1 default registry entry, got %d", len(cfg.Models.Registry))
	}
	if cfg.Models.Registry[0].Backend != DefaultModelBackend {
		t.Errorf("Expected default backend %s, got %s", DefaultModelBackend, cfg.Models.Registry[0].Backend)
	}
	if cfg.Models.Registry[0].APIKey != "" {
		t.Errorf("Expected no api key, got %q", cfg.Models.Registry[0].APIKey)
	}
	if want := filepath.Join(home, ".llmkit", "secrets.json"); cfg.Secrets.Path != want {
		t.Errorf("Expected secrets path %s, got %s", want, cfg.Secrets.Path)
	}
	if cfg.Secrets.LockTimeout != DefaultSecretsLockTimeout {
		t.Errorf("Expected secrets lock timeout %s, got %s", DefaultSecretsLockTimeout, cfg.Secrets.LockTimeout)
	}
	if want := filepath.Join(home, ".llmkit", "index"); cfg.Index.Path != want {
		t.Errorf("Expected index path %s, got %s", want, cfg.Index.Path)
	}
	if cfg.Index.Collection != DefaultIndexCollection {
		t.Errorf("Expected index collection %s, got %s", DefaultIndexCollection, cfg.Index.Collection)
	}
	if cfg.Index.BatchSize != DefaultIndexBatchSize {
		t.Errorf("Expected index batch size %d, got %d", DefaultIndexBatchSize, cfg.Index.BatchSize)
	}
	if cfg.Validation.MaxAttempts != DefaultValidationMaxAttempts {
		t.Errorf("Expected validation max attempts %d, got %d", DefaultValidationMaxAttempts, cfg.Validation.MaxAttempts)
	}
}

func TestLoadWithConfigFlag(t *testing.T) {
	tmpDir := t.TempDir()
	clearKeyEnv(t)
	configPath := writeConfig(t, tmpDir, `
server:
  log_level: debug
models:
  default: claude
  embedding: local
  registry:
    - name: claude
      backend: Anthropic
      model: claude-sonnet-4-5
      temperature: 0
      max_tokens: 256
      request_timeout: 30s
    - name: local
      backend: ollama
      model: nomic-embed-text
`)

	cfg, err := Load(commandWithConfig(t, configPath))
	if err != nil {
		t.Fatalf("failed to load config with --config: %v", err)
	}

	if cfg.Server.LogLevel != "debug" {
		t.Fatalf("expected log level debug, got %s", cfg.Server.LogLevel)
	}
	if cfg.Models.Default != "claude" {
		t.Fatalf("expected default model claude, got %s", cfg.Models.Default)
	}
	if len(cfg.Models.Registry) != 2 {
		t.Fatalf("expected 2 registry entries, got %d", len(cfg.Models.Registry))
	}

	claude := cfg.Models.Registry[0]
	if claude.Backend != "anthropic" {
		t.Fatalf("backend should be normalized, got %q", claude.Backend)
	}
	if claude.Temperature == nil || *claude.Temperature != 0 {
		t.Fatalf("explicit zero temperature should be kept, got %v", claude.Temperature)
	}
	if claude.MaxTokens != 256 {
		t.Fatalf("expected max tokens 256, got %d", claude.MaxTokens)
	}
	if cfg.Models.Registry[1].Temperature != nil {
		t.Fatalf("unset temperature should stay nil")
	}
}

func TestLoadWithMissingConfigFlagReturnsError(t *testing.T) {
	cmd := commandWithConfig(t, filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(cmd); err == nil {
		t.Fatal("expected error when --config points to missing file")
	}
}

func TestLoad_ExpandsConfiguredPaths(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearKeyEnv(t)

	configPath := writeConfig(t, tmpDir, `
secrets:
  path: ~/vault/secrets.json
index:
  path: ~/vault/index
models:
  registry:
    - name: student
      backend: xai
      schema_file: ~/schemas/student.json
`)

	cfg, err := Load(commandWithConfig(t, configPath))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if want := filepath.Join(tmpDir, "vault", "secrets.json"); cfg.Secrets.Path != want {
		t.Fatalf("secrets path = %q, want %q", cfg.Secrets.Path, want)
	}
	if want := filepath.Join(tmpDir, "vault", "index"); cfg.Index.Path != want {
		t.Fatalf("index path = %q, want %q", cfg.Index.Path, want)
	}
	if want := filepath.Join(tmpDir, "schemas", "student.json"); cfg.Models.Registry[0].SchemaFile != want {
		t.Fatalf("schema file = %q, want %q", cfg.Models.Registry[0].SchemaFile, want)
	}
}

func TestLoadInjectsBackendKeys(t *testing.T) {
	tmpDir := t.TempDir()
	clearKeyEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("XAI_API_KEY", "xai-env")

	configPath := writeConfig(t, tmpDir, `
models:
  registry:
    - name: gpt
      backend: openai
    - name: pinned
      backend: openai
      api_key: sk-pinned
    - name: grok
      backend: xai
      api_key: secret:xai
    - name: local
      backend: ollama
`)

	cfg, err := Load(commandWithConfig(t, configPath))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	want := []string{"sk-env", "sk-pinned", "secret:xai", ""}
	for i, key := range want {
		if got := cfg.Models.Registry[i].APIKey; got != key {
			t.Errorf("registry[%d] api key = %q, want %q", i, got, key)
		}
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	clearKeyEnv(t)
	t.Setenv("LLMKIT_SERVER_LOG_LEVEL", "warn")
	t.Setenv("LLMKIT_VALIDATION_MAX_ATTEMPTS", "5")

	configPath := writeConfig(t, tmpDir, "server:\n  log_level: debug\n")

	cfg, err := Load(commandWithConfig(t, configPath))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.LogLevel != "warn" {
		t.Fatalf("expected env log level warn, got %s", cfg.Server.LogLevel)
	}
	if cfg.Validation.MaxAttempts != 5 {
		t.Fatalf("expected max attempts 5, got %d", cfg.Validation.MaxAttempts)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	clearKeyEnv(t)

	// Registered with t.Setenv so cleanup unsets what the .env file adds.
	t.Setenv("LLMKIT_MODELS_DEFAULT", "")
	os.Unsetenv("LLMKIT_MODELS_DEFAULT")
	t.Setenv("GEMINI_API_KEY", "")
	os.Unsetenv("GEMINI_API_KEY")

	envPath := filepath.Join(tmpDir, "test.env")
	if err := os.WriteFile(envPath, []byte("LLMKIT_MODELS_DEFAULT=flash\nGEMINI_API_KEY=g-dotenv\n"), 0600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	configPath := writeConfig(t, tmpDir, `
models:
  registry:
    - name: flash
      backend: gemini
`)

	cmd := commandWithConfig(t, configPath)
	if err := cmd.Flags().Set("env-file", envPath); err != nil {
		t.Fatalf("set env-file flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Models.Default != "flash" {
		t.Fatalf("expected default from .env, got %s", cfg.Models.Default)
	}
	if cfg.Models.Registry[0].APIKey != "g-dotenv" {
		t.Fatalf("expected gemini key from .env, got %q", cfg.Models.Registry[0].APIKey)
	}
}

func TestSecretRef(t *testing.T) {
	if !IsSecretRef("secret:xai") {
		t.Fatal("expected secret ref")
	}
	if IsSecretRef("sk-plain") {
		t.Fatal("plain key is not a secret ref")
	}
	if got := SecretRefName("secret: xai "); got != "xai" {
		t.Fatalf("secret ref name = %q", got)
	}
}

func TestDurationOrDefault(t *testing.T) {
	d, err := DurationOrDefault("", "5s")
	if err != nil || d != 5*time.Second {
		t.Fatalf("default duration = %v, %v", d, err)
	}
	d, err = DurationOrDefault("250ms", "5s")
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("explicit duration = %v, %v", d, err)
	}
	if _, err := DurationOrDefault("soon", "5s"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := DurationOrDefault(" ", ""); err == nil {
		t.Fatal("expected empty duration error")
	}
}
