// Package vector is a semantic index over chromem-go. Documents and queries are
// embedded through a contract.EmbeddingProvider.
package vector

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/logger"
	"github.com/harunnryd/llmkit/internal/model/contract"
)

const (
	DefaultCollection = "default"
	DefaultBatchSize  = 16
	maxEmbedWorkers   = 4
)

type Document struct {
	// ID is generated when empty. Adding an existing ID replaces the document.
	ID       string
	Content  string
	Metadata map[string]string
}

type Result struct {
	ID         string
	Content    string
	Metadata   map[string]string
	Similarity float32
}

type Options struct {
	// Path is the persistence directory. Empty keeps the index in memory.
	Path       string
	Collection string
	BatchSize  int
	Compress   bool
}

type Index struct {
	db        *chromem.DB
	col       *chromem.Collection
	embedder  contract.EmbeddingProvider
	batchSize int
}

func Open(embedder contract.EmbeddingProvider, opts Options) (*Index, error) {
	if embedder == nil {
		return nil, llmErrors.InvalidInput("embedding provider is required")
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	var (
		db  *chromem.DB
		err error
	)
	if opts.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to init vector db: %w", err)
		}
	}

	idx := &Index{embedder: embedder, batchSize: opts.BatchSize, db: db}
	col, err := db.GetOrCreateCollection(opts.Collection, nil, idx.embedOne)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", opts.Collection, err)
	}
	idx.col = col
	return idx, nil
}

func (i *Index) Count() int {
	return i.col.Count()
}

// Add embeds the documents in batches and stores them. It returns the ids in
// input order.
func (i *Index) Add(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return []string{}, nil
	}

	prepared := make([]chromem.Document, len(docs))
	ids := make([]string, len(docs))
	for n, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			return nil, llmErrors.InvalidInput(fmt.Sprintf("document %d has no content", n))
		}
		id := d.ID
		if id == "" {
			id = ulid.Make().String()
		}
		ids[n] = id
		prepared[n] = chromem.Document{ID: id, Content: d.Content, Metadata: d.Metadata}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEmbedWorkers)
	batches := 0
	for start := 0; start < len(prepared); start += i.batchSize {
		end := min(start+i.batchSize, len(prepared))
		batches++
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, d := range prepared[start:end] {
				texts = append(texts, d.Content)
			}
			vectors, err := i.embed(gctx, texts)
			if err != nil {
				return err
			}
			for k, v := range vectors {
				prepared[start+k].Embedding = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := i.col.AddDocuments(ctx, prepared, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to store documents: %w", err)
	}

	slog.Debug("Indexed documents",
		"documents", len(prepared),
		"batches", batches,
		"request_id", logger.GetRequestID(ctx),
	)
	return ids, nil
}

// Query returns up to n documents ordered by cosine similarity to text.
func (i *Index) Query(ctx context.Context, text string, n int) ([]Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, llmErrors.InvalidInput("query text is empty")
	}
	if n <= 0 {
		return nil, llmErrors.InvalidInput("result count must be positive")
	}
	count := i.col.Count()
	if count == 0 {
		return []Result{}, nil
	}
	n = min(n, count)

	query, err := i.embedOne(ctx, text)
	if err != nil {
		return nil, err
	}

	docs, err := i.col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	results := make([]Result, 0, len(docs))
	for _, d := range docs {
		results = append(results, Result{
			ID:         d.ID,
			Content:    d.Content,
			Metadata:   d.Metadata,
			Similarity: d.Similarity,
		})
	}
	return results, nil
}

func (i *Index) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := i.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (i *Index) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := i.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, llmErrors.InvalidModelOutput(fmt.Sprintf("embedding returned %d vectors for %d inputs", len(vectors), len(texts)))
	}
	for n, v := range vectors {
		if len(v) == 0 {
			return nil, llmErrors.InvalidModelOutput(fmt.Sprintf("embedding %d is empty", n))
		}
	}
	return vectors, nil
}

func (i *Index) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := i.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
