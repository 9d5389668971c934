package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harunnryd/llmkit/internal/config"
	"github.com/harunnryd/llmkit/internal/model"
	"github.com/harunnryd/llmkit/internal/model/contract"
	"github.com/harunnryd/llmkit/internal/secret"

	"github.com/spf13/cobra"
)

// commandContext returns the command's context, cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func loadConfigForCommand(cmd *cobra.Command) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	loadedCfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}

	return loadedCfg, nil
}

func openSecretStore(c *config.Config) (*secret.Store, error) {
	timeout, err := config.DurationOrDefault(c.Secrets.LockTimeout, config.DefaultSecretsLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid secrets.lock_timeout: %w", err)
	}
	retry, err := config.DurationOrDefault(c.Secrets.LockRetry, config.DefaultSecretsLockRetry)
	if err != nil {
		return nil, fmt.Errorf("invalid secrets.lock_retry: %w", err)
	}
	return secret.New(c.Secrets.Path, secret.Options{LockTimeout: timeout, LockRetry: retry})
}

type session struct {
	cfg      *config.Config
	secrets  *secret.Store
	registry *model.Registry
}

// executeWithRegistry loads configuration, opens the secret store and builds
// every configured provider before calling fn.
func executeWithRegistry(cmd *cobra.Command, fn func(context.Context, *session) error) error {
	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := openSecretStore(loadedCfg)
	if err != nil {
		return fmt.Errorf("failed to open secret store: %w", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	registry, err := model.NewRegistry(ctx, loadedCfg.Models, store)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	return fn(ctx, &session{cfg: loadedCfg, secrets: store, registry: registry})
}

// provider returns the named provider, or the default one when name is empty.
func (s *session) provider(name string) (contract.Provider, error) {
	if name == "" {
		return s.registry.Default()
	}
	return s.registry.Get(name)
}

// entry returns the configuration entry behind a provider name.
func (s *session) entry(name string) (config.ModelRegistry, error) {
	if name == "" {
		name = s.cfg.Models.Default
	}
	for _, e := range s.cfg.Models.Registry {
		if e.Name == name {
			return e, nil
		}
	}
	return config.ModelRegistry{}, fmt.Errorf("provider %q is not configured", name)
}

// readPrompt joins the arguments and, when fromStdin is set, prepends
// everything read from in.
func readPrompt(in io.Reader, args []string, fromStdin bool) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if fromStdin {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		piped := strings.TrimSpace(string(data))
		switch {
		case piped == "":
		case prompt == "":
			prompt = piped
		default:
			prompt = piped + "\n\n" + prompt
		}
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt is empty")
	}
	return prompt, nil
}
