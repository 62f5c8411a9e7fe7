package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/docrag/internal/corpus"
	"github.com/Aman-CERP/docrag/internal/embed"
	derrors "github.com/Aman-CERP/docrag/internal/errors"
)

// DefaultTopK is used when a caller passes topK <= 0 to a Searcher.
const DefaultTopK = 5

// Searcher embeds text queries and runs them against one corpus.
type Searcher struct {
	embedder   embed.Embedder
	corpus     *corpus.Corpus
	engine     *Engine
	titleField string
	topK       int
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithEngine sets the retrieval engine (default: lenient).
func WithEngine(e *Engine) SearcherOption {
	return func(s *Searcher) {
		s.engine = e
	}
}

// WithTitleField names the row field used as the context title.
func WithTitleField(field string) SearcherOption {
	return func(s *Searcher) {
		s.titleField = field
	}
}

// WithDefaultTopK sets the result count used when none is requested.
func WithDefaultTopK(k int) SearcherOption {
	return func(s *Searcher) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewSearcher binds an embedder to an opened corpus. The embedder must
// produce vectors of the dimension the corpus was built with.
func NewSearcher(e embed.Embedder, c *corpus.Corpus, opts ...SearcherOption) (*Searcher, error) {
	if e == nil || c == nil {
		return nil, derrors.New(derrors.ErrCodeInternal, "searcher needs an embedder and a corpus", nil)
	}

	s := &Searcher{
		embedder:   e,
		corpus:     c,
		engine:     NewEngine(),
		titleField: "title",
		topK:       DefaultTopK,
	}
	for _, opt := range opts {
		opt(s)
	}

	if dims := e.Dimensions(); dims > 0 && c.Manifest.Dimensions > 0 && dims != c.Manifest.Dimensions {
		return nil, dimensionError(c, dims, e.ModelName())
	}
	return s, nil
}

// Corpus returns the searched corpus.
func (s *Searcher) Corpus() *corpus.Corpus {
	return s.corpus
}

// TitleField returns the row field used as the context title.
func (s *Searcher) TitleField() string {
	return s.titleField
}

// Search embeds text and returns up to topK rows nearest to it.
func (s *Searcher) Search(ctx context.Context, text string, topK int) ([]Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, derrors.New(derrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if topK <= 0 {
		topK = s.topK
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, derrors.New(derrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}
	if want := s.corpus.Index.Dimensions(); len(vec) != want {
		return nil, dimensionError(s.corpus, len(vec), s.embedder.ModelName())
	}

	return s.engine.Search(ctx, vec, s.corpus.Index, s.corpus.Store, topK)
}

// Context runs Search and renders the results with FormatContext.
func (s *Searcher) Context(ctx context.Context, text string, topK int) (string, []Result, error) {
	results, err := s.Search(ctx, text, topK)
	if err != nil {
		return "", nil, err
	}
	return FormatContext(results, s.titleField), results, nil
}

func dimensionError(c *corpus.Corpus, got int, model string) error {
	return derrors.New(derrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("corpus %s has %d-dimensional vectors (%s), query embedder %s produces %d",
			c.Manifest.Name, c.Manifest.Dimensions, c.Manifest.Model, model, got), nil).
		WithSuggestion("Use the embedding model the corpus was built with, or rebuild it")
}
