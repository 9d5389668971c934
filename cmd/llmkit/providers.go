package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/llmkit/internal/formatter"
	"github.com/harunnryd/llmkit/internal/model"

	"github.com/spf13/cobra"
)

var providersOutput string

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatter.ParseOutputFormat(providersOutput)
		if err != nil {
			return err
		}

		return executeWithRegistry(cmd, func(_ context.Context, s *session) error {
			out, err := formatter.NewFormatterFactory().Create(format)
			if err != nil {
				return err
			}
			rendered, err := out.FormatProviders(s.registry.List())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rendered)
			if format == formatter.OutputFormatTable {
				fmt.Fprintf(cmd.OutOrStdout(), "\nBackends: %v\n", model.Backends())
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.Flags().StringVarP(&providersOutput, "output", "o", "table", "output format (table, json, yaml)")
}
