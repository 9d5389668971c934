package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/llmkit/internal/secret"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage stored API keys",
	Long:  `Manage the secret store. Registry entries refer to stored values as api_key: "secret:<name>".`,
}

var secretSetCmd = &cobra.Command{
	Use:   "set [name] [value]",
	Short: "Store a secret; the value is read from stdin when omitted",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := ""
		if len(args) == 2 {
			value = args[1]
		} else {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if scanner.Scan() {
				value = strings.TrimSpace(scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read secret from stdin: %w", err)
			}
		}
		if value == "" {
			return fmt.Errorf("secret value is empty")
		}

		return withSecretStore(cmd, func(ctx context.Context, store *secret.Store) error {
			if err := store.Set(ctx, args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Stored secret %s\n", args[0])
			return nil
		})
	},
}

var secretGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Print a stored secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSecretStore(cmd, func(ctx context.Context, store *secret.Store) error {
			value, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		})
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Remove a stored secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSecretStore(cmd, func(ctx context.Context, store *secret.Store) error {
			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted secret %s\n", args[0])
			return nil
		})
	},
}

var secretListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSecretStore(cmd, func(ctx context.Context, store *secret.Store) error {
			names, err := store.List(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		})
	},
}

func withSecretStore(cmd *cobra.Command, fn func(context.Context, *secret.Store) error) error {
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
	return fn(ctx, store)
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretSetCmd)
	secretCmd.AddCommand(secretGetCmd)
	secretCmd.AddCommand(secretDeleteCmd)
	secretCmd.AddCommand(secretListCmd)
}
