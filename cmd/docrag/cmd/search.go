package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/rowstore"
	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

type searchOptions struct {
	topK    int
	format  string // "text", "json", "context"
	backend string
	strict  bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <corpus> <query>",
		Short: "Retrieve the rows nearest to a query",
		Long: `Embed the query and return the top-K rows of a built corpus, nearest
first. Scores are squared L2 distances: lower is closer.

Formats:
  text     ranked list with a short preview (default)
  json     result objects with every stored field plus score
  context  the numbered context block handed to a language model`,
		Example: `  docrag search guide "how do I configure the cache"
  docrag search ui-templates "login form" -k 3 --format json
  docrag search guide "install" --format context`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSearch(ctx, cmd, args[0], strings.Join(args[1:], " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (default: retrieval.top_k)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json, context")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Row-store backend: jsonl, memory, sqlite")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail when index and row store disagree")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, name, query string, opts searchOptions) error {
	switch opts.format {
	case "text", "json", "context":
	default:
		return derrors.ValidationError(fmt.Sprintf("unknown format %q (use: text, json, context)", opts.format), nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	s, c, err := openSearcher(cfg, e, name, queryOptions{backend: opts.backend, strict: opts.strict})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	start := time.Now()
	results, err := s.Search(ctx, query, opts.topK)
	if err != nil {
		return err
	}
	latency := time.Since(start)
	slog.Info("cli_search_completed",
		slog.String("corpus", name),
		slog.Int("results", len(results)),
		slog.Duration("duration", latency))

	if m, closeMetrics := openMetrics(cfg, 0); m != nil {
		m.Record(telemetry.QueryEvent{Corpus: name, Query: query, ResultCount: len(results), Latency: latency})
		closeMetrics()
	}

	out := output.New(cmd.OutOrStdout())
	switch opts.format {
	case "json":
		return out.JSON(results)
	case "context":
		out.Text(search.FormatContext(results, s.TitleField()))
		return nil
	}

	if len(results) == 0 {
		out.Status("", "No results.")
		return nil
	}
	for i, r := range results {
		out.Hit(i+1, r.Score, r.String(s.TitleField()), r.String(rowstore.TextField))
	}
	return nil
}
