package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/corpus"
	"github.com/Aman-CERP/docrag/internal/embed"
	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, derrors.ConfigError(err.Error(), err).
			WithSuggestion("Check .docrag.yaml or run 'docrag config init'")
	}
	return cfg, nil
}

// newEmbedder creates the embedder described by the embeddings section.
func newEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return nil, derrors.ConfigError(err.Error(), err)
	}

	e, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:      provider,
		Model:         cfg.Embeddings.Model,
		Dimensions:    cfg.Embeddings.Dimensions,
		OpenAIAPIKey:  cfg.Embeddings.APIKey,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		MaxRetries:    cfg.Embeddings.MaxRetries,
		CacheSize:     cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// corpusConfig looks up a configured corpus by name.
func corpusConfig(cfg *config.Config, name string) (config.CorpusConfig, error) {
	cc, ok := cfg.Corpus(name)
	if !ok {
		return config.CorpusConfig{}, derrors.New(derrors.ErrCodeCorpusUnknown,
			fmt.Sprintf("corpus %q is not configured", name), nil).
			WithSuggestion("Add it to the corpora list in .docrag.yaml")
	}
	return cc, nil
}

// queryOptions overrides retrieval settings for one command.
type queryOptions struct {
	backend string
	strict  bool
}

// openSearcher opens a built corpus and wraps it in a Searcher. The caller
// must close the returned corpus.
func openSearcher(cfg *config.Config, e embed.Embedder, name string, q queryOptions) (*search.Searcher, *corpus.Corpus, error) {
	cc, err := corpusConfig(cfg, name)
	if err != nil {
		return nil, nil, err
	}

	backend := cfg.Retrieval.Backend
	if q.backend != "" {
		backend = q.backend
	}
	c, err := corpus.Open(cfg.CorpusDir(name), backend)
	if err != nil {
		var de *derrors.DocragError
		if errors.As(err, &de) && de.Suggestion == "" {
			de.WithSuggestion(fmt.Sprintf("Run 'docrag build %s'", name))
		}
		return nil, nil, err
	}

	engine := search.NewEngine(search.WithStrict(cfg.Retrieval.Strict || q.strict))
	s, err := search.NewSearcher(e, c,
		search.WithEngine(engine),
		search.WithTitleField(cc.TitleField),
		search.WithDefaultTopK(cfg.Retrieval.TopK),
	)
	if err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	return s, c, nil
}

// telemetryDisabled reports whether DOCRAG_NO_TELEMETRY is set to a true value.
func telemetryDisabled() bool {
	off, _ := strconv.ParseBool(os.Getenv("DOCRAG_NO_TELEMETRY"))
	return off
}

// telemetryPath returns the query metrics database for the project.
func telemetryPath(cfg *config.Config) string {
	return filepath.Join(cfg.ResolvePath(cfg.DataDir), telemetry.FileName)
}

// openMetrics returns a collector backed by the project's telemetry
// database, or nil when telemetry is disabled. A store that cannot be
// opened is logged and metrics stay in memory. The returned func flushes
// and closes everything.
func openMetrics(cfg *config.Config, flushInterval time.Duration) (*telemetry.QueryMetrics, func()) {
	if telemetryDisabled() {
		return nil, func() {}
	}

	mcfg := telemetry.DefaultConfig()
	mcfg.FlushInterval = flushInterval

	store, err := telemetry.OpenSQLiteStore(telemetryPath(cfg))
	if err != nil {
		slog.Warn("telemetry_store_unavailable", slog.String("error", err.Error()))
		return telemetry.NewQueryMetricsWithConfig(nil, mcfg), func() {}
	}

	m := telemetry.NewQueryMetricsWithConfig(store, mcfg)
	return m, func() {
		if err := m.Close(); err != nil {
			slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
		}
		_ = store.Close()
	}
}
