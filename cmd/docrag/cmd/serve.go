package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/corpus"
	"github.com/Aman-CERP/docrag/internal/embed"
	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/mcp"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose built corpora as MCP tools over stdio",
		Long: `Start a Model Context Protocol server. Every built corpus becomes a
search_<corpus> tool; list_corpora and prepare_context are always present.

stdout carries only protocol messages. Logs go to ~/.docrag/logs/docrag.log.
Corpora that have not been built are skipped with a warning in the log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport (default: server.transport)")

	return cmd
}

func runServe(ctx context.Context, transport string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if transport == "" {
		transport = cfg.Server.Transport
	}

	e, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	corpora, closers, err := openServeCorpora(cfg, e)
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(corpora)
	if err != nil {
		return err
	}

	metrics, closeMetrics := openMetrics(cfg, telemetry.DefaultConfig().FlushInterval)
	defer closeMetrics()
	srv.SetMetrics(metrics)

	err = srv.Serve(ctx, transport)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openServeCorpora opens every configured corpus that has been built.
func openServeCorpora(cfg *config.Config, e embed.Embedder) ([]mcp.Corpus, []*corpus.Corpus, error) {
	var (
		out     []mcp.Corpus
		opened  []*corpus.Corpus
		skipped int
	)
	for _, cc := range cfg.Corpora {
		s, c, err := openSearcher(cfg, e, cc.Name, queryOptions{})
		if err != nil {
			skipped++
			slog.Warn("corpus_skipped",
				slog.String("corpus", cc.Name),
				slog.String("error", err.Error()))
			continue
		}
		opened = append(opened, c)
		out = append(out, mcp.Corpus{
			Name:        cc.Name,
			Kind:        cc.Kind,
			Description: cc.Description,
			Searcher:    s,
		})
	}

	if len(out) == 0 {
		return nil, opened, derrors.New(derrors.ErrCodeIndexNotFound, "no built corpora to serve", nil).
			WithSuggestion("Run 'docrag build' first")
	}
	slog.Info("serve_corpora_opened",
		slog.Int("corpora", len(out)),
		slog.Int("skipped", skipped))
	return out, opened, nil
}
