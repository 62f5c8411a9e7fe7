package search

import (
	"context"
	"fmt"
	"log/slog"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/rowstore"
)

// EngineConfig configures the retrieval engine.
type EngineConfig struct {
	// Strict turns an index/store length divergence into an error instead
	// of silently dropping the ids that have no row.
	Strict bool
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithStrict sets strict divergence handling.
func WithStrict(strict bool) EngineOption {
	return func(e *Engine) {
		e.config.Strict = strict
	}
}

// Engine resolves nearest-neighbour ids to stored rows.
type Engine struct {
	config EngineConfig
}

// NewEngine creates an engine. The zero configuration is lenient.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Search returns up to topK rows nearest to query, in index order. Ids
// the store cannot resolve are skipped. Only index failures, a cancelled
// context and, in strict mode, a divergent corpus are errors.
func (e *Engine) Search(ctx context.Context, query []float32, idx Index, rs rowstore.RowStore, topK int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total, rows := idx.Total(), rs.Len()
	if total != rows {
		if e.config.Strict {
			return nil, derrors.New(derrors.ErrCodeCorpusDiverged,
				fmt.Sprintf("index has %d vectors, row store has %d rows", total, rows), nil).
				WithSuggestion("Rebuild the corpus with 'docrag build'")
		}
		slog.Warn("corpus_diverged",
			slog.Int("index_total", total),
			slog.Int("store_rows", rows))
	}

	k := max(1, topK)
	distances, ids, err := idx.Search(query, k)
	if err != nil {
		return nil, derrors.New(derrors.ErrCodeSearchFailed, "vector search failed", err)
	}

	maxValid := min(total, rows)
	valid := make([]int, 0, len(ids))
	scores := make([]float32, 0, len(ids))
	for i, id := range ids {
		if id < 0 || id >= int64(maxValid) {
			continue
		}
		valid = append(valid, int(id))
		scores = append(scores, distances[i])
	}

	fetched, found := fetchRows(rs, valid)
	results := make([]Result, 0, len(valid))
	for i, id := range valid {
		if !found[i] {
			slog.Debug("row_absent", slog.Int("id", id))
			continue
		}
		results = append(results, Result{Score: scores[i], Fields: fetched[i].Map()})
	}
	return results, nil
}

// fetchRows resolves ids in one batch when the store supports it.
func fetchRows(rs rowstore.RowStore, ids []int) ([]rowstore.Row, []bool) {
	if b, ok := rs.(rowstore.RowBatcher); ok {
		return b.Rows(ids)
	}
	rows, found := make([]rowstore.Row, len(ids)), make([]bool, len(ids))
	for i, id := range ids {
		rows[i], found[i] = rs.Row(id)
	}
	return rows, found
}
