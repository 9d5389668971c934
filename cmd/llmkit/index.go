package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harunnryd/llmkit/internal/formatter"
	"github.com/harunnryd/llmkit/internal/model/contract"
	"github.com/harunnryd/llmkit/internal/vector"

	"github.com/spf13/cobra"
)

var (
	indexProvider   string
	indexCollection string
	indexTexts      []string
	indexLimit      int
	indexOutput     string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Semantic index backed by the embedding provider",
}

var indexAddCmd = &cobra.Command{
	Use:   "add [file...]",
	Short: "Embed and store files or --text values",
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := indexDocuments(args, indexTexts)
		if err != nil {
			return err
		}

		return withIndex(cmd, func(ctx context.Context, idx *vector.Index) error {
			ids, err := idx.Add(ctx, docs)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		})
	},
}

var indexQueryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Find the documents closest to a text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatter.ParseOutputFormat(indexOutput)
		if err != nil {
			return err
		}

		return withIndex(cmd, func(ctx context.Context, idx *vector.Index) error {
			results, err := idx.Query(ctx, args[0], indexLimit)
			if err != nil {
				return err
			}
			out, err := formatter.NewFormatterFactory().Create(format)
			if err != nil {
				return err
			}
			rendered, err := out.FormatResults(results)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return nil
		})
	},
}

func withIndex(cmd *cobra.Command, fn func(context.Context, *vector.Index) error) error {
	return executeWithRegistry(cmd, func(ctx context.Context, s *session) error {
		var (
			embedder contract.EmbeddingProvider
			err      error
		)
		if indexProvider != "" {
			embedder, err = s.registry.Get(indexProvider)
		} else {
			embedder, err = s.registry.Embedding()
		}
		if err != nil {
			return err
		}

		collection := s.cfg.Index.Collection
		if indexCollection != "" {
			collection = indexCollection
		}
		idx, err := vector.Open(embedder, vector.Options{
			Path:       s.cfg.Index.Path,
			Collection: collection,
			BatchSize:  s.cfg.Index.BatchSize,
			Compress:   s.cfg.Index.Compress,
		})
		if err != nil {
			return err
		}
		return fn(ctx, idx)
	})
}

// indexDocuments turns file paths and inline texts into documents. Files
// keep their path as the document id.
func indexDocuments(paths, texts []string) ([]vector.Document, error) {
	docs := make([]vector.Document, 0, len(paths)+len(texts))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, vector.Document{
			ID:       abs,
			Content:  string(data),
			Metadata: map[string]string{"source": abs},
		})
	}
	for _, text := range texts {
		docs = append(docs, vector.Document{Content: text})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("nothing to index: pass files or --text")
	}
	return docs, nil
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexAddCmd)
	indexCmd.AddCommand(indexQueryCmd)
	indexCmd.PersistentFlags().StringVarP(&indexProvider, "provider", "p", "", "embedding provider name (default is models.embedding)")
	indexCmd.PersistentFlags().StringVar(&indexCollection, "collection", "", "collection name (default is index.collection)")
	indexAddCmd.Flags().StringArrayVar(&indexTexts, "text", nil, "inline text to index; repeatable")
	indexQueryCmd.Flags().IntVarP(&indexLimit, "limit", "n", 5, "number of results")
	indexQueryCmd.Flags().StringVarP(&indexOutput, "output", "o", "table", "output format (table, json, yaml)")
}
