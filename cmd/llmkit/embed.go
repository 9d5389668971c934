package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/harunnryd/llmkit/internal/model/contract"

	"github.com/spf13/cobra"
)

var (
	embedProvider string
	embedStdin    bool
)

var embedCmd = &cobra.Command{
	Use:   "embed [text...]",
	Short: "Embed texts and print one JSON vector per line",
	Long:  `Embed each argument, or each non-empty stdin line with --stdin, using the embedding provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := embedInputs(cmd.InOrStdin(), args, embedStdin)
		if err != nil {
			return err
		}

		return executeWithRegistry(cmd, func(ctx context.Context, s *session) error {
			var (
				p   contract.EmbeddingProvider
				err error
			)
			if embedProvider != "" {
				p, err = s.registry.Get(embedProvider)
			} else {
				p, err = s.registry.Embedding()
			}
			if err != nil {
				return err
			}

			vectors, err := p.Embed(ctx, inputs)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, v := range vectors {
				if err := enc.Encode(v); err != nil {
					return fmt.Errorf("failed to encode vector: %w", err)
				}
			}
			return nil
		})
	},
}

func embedInputs(in io.Reader, args []string, fromStdin bool) ([]string, error) {
	inputs := append([]string(nil), args...)
	if fromStdin {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				inputs = append(inputs, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("nothing to embed")
	}
	return inputs, nil
}

func init() {
	rootCmd.AddCommand(embedCmd)
	embedCmd.Flags().StringVarP(&embedProvider, "provider", "p", "", "configured provider name (default is models.embedding)")
	embedCmd.Flags().BoolVar(&embedStdin, "stdin", false, "read one input per line from stdin")
}
