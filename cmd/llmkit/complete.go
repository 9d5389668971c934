package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/llmkit/internal/model/contract"

	"github.com/spf13/cobra"
)

var (
	completeProvider    string
	completeMaxTokens   int
	completeTemperature float32
	completeStdin       bool
)

var completeCmd = &cobra.Command{
	Use:   "complete [prompt]",
	Short: "Run a text completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(cmd.InOrStdin(), args, completeStdin)
		if err != nil {
			return err
		}

		req := contract.NewCompletionRequest(prompt)
		if cmd.Flags().Changed("max-tokens") {
			req = req.WithMaxTokens(completeMaxTokens)
		}
		if cmd.Flags().Changed("temperature") {
			req = req.WithTemperature(completeTemperature)
		}

		return executeWithRegistry(cmd, func(ctx context.Context, s *session) error {
			p, err := s.provider(completeProvider)
			if err != nil {
				return err
			}
			resp, err := p.Complete(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(completeCmd)
	completeCmd.Flags().StringVarP(&completeProvider, "provider", "p", "", "configured provider name (default is models.default)")
	completeCmd.Flags().IntVar(&completeMaxTokens, "max-tokens", 0, "maximum tokens to generate")
	completeCmd.Flags().Float32Var(&completeTemperature, "temperature", 0, "sampling temperature")
	completeCmd.Flags().BoolVar(&completeStdin, "stdin", false, "read the prompt from stdin")
}
