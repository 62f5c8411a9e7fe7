package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
)

// BatchOptions controls BatchEmbed.
type BatchOptions struct {
	// BatchSize is the number of texts per EmbedBatch call (default: 100)
	BatchSize int

	// Concurrency is the number of batches in flight (default: 2)
	Concurrency int

	// Progress is called after each batch with (completed texts, total texts).
	// Calls are serialized.
	Progress func(completed, total int)
}

// BatchEmbed embeds texts in fixed-size batches, running up to Concurrency
// batches at once. The result has one vector per text in input order. Any
// batch failure cancels the rest and returns the error; no partial result
// is returned.
func BatchEmbed(ctx context.Context, e Embedder, texts []string, opts BatchOptions) ([][]float32, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize > MaxBatchSize {
		opts.BatchSize = MaxBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	var (
		mu        sync.Mutex
		completed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for start := 0; start < len(texts); start += opts.BatchSize {
		start := start
		end := min(start+opts.BatchSize, len(texts))

		g.Go(func() error {
			vecs, err := e.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				slog.Warn("embedding_batch_failed",
					slog.Int("start", start),
					slog.Int("size", end-start),
					slog.String("model", e.ModelName()),
					slog.String("error", err.Error()))
				return derrors.New(derrors.ErrCodeEmbeddingFailed,
					fmt.Sprintf("embedding batch %d-%d failed", start, end-1), err)
			}
			if len(vecs) != end-start {
				return derrors.New(derrors.ErrCodeEmbeddingFailed,
					fmt.Sprintf("embedder returned %d vectors for %d texts", len(vecs), end-start), nil)
			}
			if dims := e.Dimensions(); dims > 0 {
				for i, v := range vecs {
					if len(v) != dims {
						return derrors.New(derrors.ErrCodeDimensionMismatch,
							fmt.Sprintf("text %d: expected %d dimensions, got %d", start+i, dims, len(v)), nil)
					}
				}
			}
			copy(out[start:end], vecs)

			mu.Lock()
			completed += end - start
			if opts.Progress != nil {
				opts.Progress(completed, len(texts))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
