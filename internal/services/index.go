package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

const (
	DefaultEmbedBatchSize   = 16
	DefaultEmbedConcurrency = 4
	DefaultEmbedTimeout     = 60 * time.Second
)

// Index is an immutable nearest-neighbour index over one document's chunks.
// It is safe for concurrent searches.
type Index struct {
	chunks    []models.Chunk
	vectors   [][]float32
	dimension int
	embedder  Embedder
	timeout   time.Duration
}

type indexOptions struct {
	batchSize   int
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

// IndexOption configures BuildIndex.
type IndexOption func(*indexOptions)

// WithBatchSize sets how many chunks are sent per provider call.
func WithBatchSize(n int) IndexOption {
	return func(o *indexOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of in-flight provider calls.
func WithConcurrency(n int) IndexOption {
	return func(o *indexOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithCallTimeout bounds each provider call, including the query embedding in Search.
func WithCallTimeout(d time.Duration) IndexOption {
	return func(o *indexOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithIndexLogger sets the logger used during the build.
func WithIndexLogger(l *slog.Logger) IndexOption {
	return func(o *indexOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// BuildIndex embeds every chunk once and returns the finished index. Either all
// chunks are embedded or nil is returned with an error wrapping
// models.ErrEmbeddingProvider.
func BuildIndex(ctx context.Context, chunks []models.Chunk, embedder Embedder, opts ...IndexOption) (*Index, error) {
	o := indexOptions{
		batchSize:   DefaultEmbedBatchSize,
		concurrency: DefaultEmbedConcurrency,
		timeout:     DefaultEmbedTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if len(chunks) == 0 {
		return nil, models.ErrEmptyDocument
	}

	logCtx := o.logger.With("model", embedder.ModelName(), "chunkCount", len(chunks))
	logCtx.Info("Building index.", "batchSize", o.batchSize)

	vectors := make([][]float32, len(chunks))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.concurrency)

	for lo := 0; lo < len(chunks); lo += o.batchSize {
		hi := min(lo+o.batchSize, len(chunks))
		eg.Go(func() error {
			texts := make([]string, 0, hi-lo)
			for _, c := range chunks[lo:hi] {
				texts = append(texts, c.Content)
			}
			callCtx, cancel := context.WithTimeout(gctx, o.timeout)
			defer cancel()

			batch, err := embedder.EmbedBatch(callCtx, texts)
			if err != nil {
				return fmt.Errorf("chunks %d-%d: %w", lo, hi-1, err)
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("chunks %d-%d: provider returned %d vectors for %d texts", lo, hi-1, len(batch), len(texts))
			}
			for i, v := range batch {
				vectors[lo+i] = normalize(v)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("Index build failed", "error", err)
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingProvider, err)
	}

	dimension := len(vectors[0])
	if dimension == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty vector", models.ErrEmbeddingProvider)
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return nil, fmt.Errorf("%w: chunk %d has dimension %d, expected %d", models.ErrEmbeddingProvider, i, len(v), dimension)
		}
	}

	owned := make([]models.Chunk, len(chunks))
	copy(owned, chunks)
	logCtx.Info("Index built.", "dimension", dimension)
	return &Index{
		chunks:    owned,
		vectors:   vectors,
		dimension: dimension,
		embedder:  embedder,
		timeout:   o.timeout,
	}, nil
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int { return len(idx.chunks) }

// Dimension returns the embedding dimensionality fixed at construction.
func (idx *Index) Dimension() int { return idx.dimension }

// Search embeds query once and returns the k most similar chunks by cosine
// similarity, highest first. Equal scores keep chunk order.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, idx.timeout)
	defer cancel()

	qv, err := idx.embedder.Embed(callCtx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", models.ErrEmbeddingProvider, err)
	}
	if len(qv) != idx.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", models.ErrEmbeddingProvider, len(qv), idx.dimension)
	}
	qv = normalize(qv)

	scored := make([]models.ScoredChunk, len(idx.chunks))
	for i, v := range idx.vectors {
		scored[i] = models.ScoredChunk{Chunk: idx.chunks[i], Score: dot(v, qv)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}
