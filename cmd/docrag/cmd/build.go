package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/corpus"
	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/ui"
)

type buildOptions struct {
	source  string
	kind    string
	name    string
	index   string
	backend string
	plain   bool
}

func newBuildCmd() *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build [corpus...]",
		Short: "Chunk, embed and index corpora",
		Long: `Build one or more corpora declared in .docrag.yaml. With no arguments
every configured corpus is built.

Each build reads the source, splits it into rows, embeds every row and
writes the row store, vector index and manifest. The new corpus replaces
the previous one only after all artifacts are written, so a failed build
leaves the last good corpus in place.`,
		Example: `  # Build every configured corpus
  docrag build

  # Build one corpus with an HNSW index
  docrag build guide --index hnsw

  # Build a file that is not in the config
  docrag build --source docs/GUIDE.md --name guide`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBuild(ctx, cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "", "Build an unconfigured source file")
	cmd.Flags().StringVar(&opts.kind, "kind", config.KindMarkdown, "Kind of --source: markdown, articles, templates")
	cmd.Flags().StringVar(&opts.name, "name", "", "Corpus name for --source (default: file name)")
	cmd.Flags().StringVar(&opts.index, "index", "", "Override retrieval.index: flat, hnsw")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Override retrieval.backend: jsonl, memory, sqlite")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output")

	return cmd
}

func runBuild(ctx context.Context, cmd *cobra.Command, names []string, opts buildOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	specs, err := selectSpecs(cfg, names, opts)
	if err != nil {
		return err
	}

	e, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	bopts, err := corpus.BuilderOptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	if opts.index != "" {
		bopts.IndexKind = opts.index
	}
	if opts.backend != "" {
		bopts.Backend = opts.backend
	}

	r := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(ui.DetectNoColor())))
	if err := r.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = r.Stop() }()

	var current string
	bopts.Progress = func(stage string, done, total int) {
		r.UpdateProgress(ui.ProgressEvent{Corpus: current, Stage: ui.ParseStage(stage), Current: done, Total: total})
	}
	b := corpus.NewBuilder(e, bopts)

	var failed []error
	for _, spec := range specs {
		current = spec.Name
		start := time.Now()

		m, err := b.Build(ctx, spec)
		if err != nil {
			r.Fail(spec.Name, err)
			failed = append(failed, fmt.Errorf("%s: %w", spec.Name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		r.Complete(ui.CompletionStats{
			Corpus:     m.Name,
			Rows:       m.Rows,
			Model:      m.Model,
			Dimensions: m.Dimensions,
			Index:      m.Index,
			Backend:    m.Backend,
			Duration:   time.Since(start),
		})
	}

	if len(failed) > 0 {
		if len(specs) == 1 {
			return errors.Unwrap(failed[0])
		}
		return derrors.New(derrors.ErrCodeBuildFailed,
			fmt.Sprintf("%d of %d corpora failed to build", len(failed), len(specs)),
			errors.Join(failed...))
	}
	return nil
}

// selectSpecs resolves the corpora to build from arguments or --source.
func selectSpecs(cfg *config.Config, names []string, opts buildOptions) ([]corpus.Spec, error) {
	if opts.source != "" {
		if len(names) > 0 {
			return nil, derrors.ValidationError("--source builds a single corpus; drop the corpus arguments", nil)
		}
		name := opts.name
		if name == "" {
			name = nameFromFile(opts.source)
		}
		if name == "" {
			return nil, derrors.ValidationError("cannot derive a corpus name from "+opts.source, nil).
				WithSuggestion("Pass --name")
		}
		return []corpus.Spec{{
			Name:   name,
			Kind:   opts.kind,
			Source: cfg.ResolvePath(opts.source),
			Path:   opts.source,
		}}, nil
	}

	if len(names) == 0 {
		if len(cfg.Corpora) == 0 {
			return nil, derrors.New(derrors.ErrCodeConfigNotFound, "no corpora configured", nil).
				WithSuggestion("Run 'docrag config init' or pass --source")
		}
		specs := make([]corpus.Spec, 0, len(cfg.Corpora))
		for _, cc := range cfg.Corpora {
			specs = append(specs, corpus.SpecFromConfig(cfg, cc))
		}
		return specs, nil
	}

	specs := make([]corpus.Spec, 0, len(names))
	for _, name := range names {
		cc, err := corpusConfig(cfg, name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, corpus.SpecFromConfig(cfg, cc))
	}
	return specs, nil
}

// nameFromFile turns "docs/My Guide.md" into "my-guide".
func nameFromFile(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-_")
}
