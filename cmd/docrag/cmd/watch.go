package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/corpus"
	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/ui"
	"github.com/Aman-CERP/docrag/internal/watcher"
)

type watchOptions struct {
	initial      bool
	poll         bool
	pollInterval time.Duration
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [corpus...]",
		Short: "Rebuild corpora when their sources change",
		Long: `Watch the source file of each selected corpus and rebuild it after the
file has been quiet for watch.debounce. A failed rebuild is reported and
the previous corpus stays in place. Deleting a source does not delete its
corpus.`,
		Example: `  docrag watch
  docrag watch guide --initial
  docrag watch --poll --poll-interval 5s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.initial, "initial", false, "Build every selected corpus before watching")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Poll instead of using file system notifications")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 2*time.Second, "Polling interval")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, names []string, opts watchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	specs, err := selectSpecs(cfg, names, buildOptions{})
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
	b := corpus.NewBuilder(e, bopts)
	r := ui.NewPlainRenderer(ui.NewConfig(cmd.OutOrStdout()))

	byName := make(map[string]corpus.Spec, len(specs))
	sources := make(map[string][]string)
	paths := make([]string, 0, len(specs))
	for _, spec := range specs {
		byName[spec.Name] = spec
		if _, ok := sources[spec.Source]; !ok {
			paths = append(paths, spec.Source)
		}
		sources[spec.Source] = append(sources[spec.Source], spec.Name)
	}

	build := func(ctx context.Context, name string) error {
		start := time.Now()
		m, err := b.Build(ctx, byName[name])
		if err != nil {
			r.Fail(name, err)
			return err
		}
		r.Complete(ui.CompletionStats{
			Corpus: m.Name, Rows: m.Rows, Model: m.Model, Dimensions: m.Dimensions,
			Index: m.Index, Backend: m.Backend, Duration: time.Since(start),
		})
		return nil
	}

	if opts.initial {
		for _, spec := range specs {
			_ = build(ctx, spec.Name)
		}
	}

	w, err := watcher.NewSourceWatcher(paths, watcher.Options{
		DebounceWindow: cfg.DebounceDuration(),
		PollInterval:   opts.pollInterval,
		ForcePolling:   opts.poll,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	out := output.New(cmd.OutOrStdout())
	out.Statusf("👀", "Watching %d source(s) with %s. Press Ctrl+C to stop.", len(paths), w.Mode())

	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx) }()

	runErr := watcher.NewRebuilder(sources, build).Run(ctx, w)
	_ = w.Stop()
	if err := <-startErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return runErr
}
