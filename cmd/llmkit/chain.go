package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/llmkit/internal/chain"
	"github.com/harunnryd/llmkit/internal/formatter"

	"github.com/spf13/cobra"
)

var (
	chainProvider string
	chainOutput   string
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Run prompt chains",
}

var chainRunCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run every chain defined in a YAML file",
	Long:  `Run the chains in a chain file concurrently. Steps reference earlier outputs of the same chain as {{step_id}}.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatter.ParseOutputFormat(chainOutput)
		if err != nil {
			return err
		}
		f, err := chain.Load(args[0])
		if err != nil {
			return err
		}

		return executeWithRegistry(cmd, func(ctx context.Context, s *session) error {
			if chainProvider != "" {
				f.Provider = chainProvider
			}
			if f.Provider == "" {
				f.Provider = s.cfg.Models.Default
			}

			chains, err := f.Build(s.registry)
			if err != nil {
				return err
			}
			results, err := chain.RunAll(ctx, chains)
			if err != nil {
				return err
			}

			out, err := formatter.NewFormatterFactory().Create(format)
			if err != nil {
				return err
			}
			rendered, err := out.FormatOutputs(results)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(chainCmd)
	chainCmd.AddCommand(chainRunCmd)
	chainRunCmd.Flags().StringVarP(&chainProvider, "provider", "p", "", "provider for steps that name none (default is the file's, then models.default)")
	chainRunCmd.Flags().StringVarP(&chainOutput, "output", "o", "yaml", "output format (table, json, yaml)")
}
