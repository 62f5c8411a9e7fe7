package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/preflight"
)

type doctorOptions struct {
	verbose    bool
	jsonOutput bool
	offline    bool
}

func newDoctorCmd() *cobra.Command {
	var opts doctorOptions

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, corpora and the embedder",
		Long: `Run diagnostics for the current project.

Checks:
  - Data directory is writable, with 50MB free
  - Every corpus source exists
  - Every corpus is built and newer than its source
  - The embedder answers and matches each built index (skipped with --offline)`,
		Example: `  docrag doctor
  docrag doctor --verbose
  docrag doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDoctor(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Skip the embedder checks")

	return cmd
}

// doctorReport is the JSON form of a doctor run.
type doctorReport struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func runDoctor(ctx context.Context, cmd *cobra.Command, opts doctorOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	checkerOpts := []preflight.Option{
		preflight.WithVerbose(opts.verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	}
	if !opts.offline {
		e, err := newEmbedder(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()
		checkerOpts = append(checkerOpts, preflight.WithEmbedder(e))
	}

	checker := preflight.New(checkerOpts...)
	results := checker.RunAll(ctx, cfg)

	if opts.jsonOutput {
		if err := output.New(cmd.OutOrStdout()).JSON(doctorReport{
			Status: checker.SummaryStatus(results),
			Checks: results,
		}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return derrors.New(derrors.ErrCodeInternal, "system check failed", nil).
			WithSuggestion("Fix the FAIL items above and run 'docrag doctor' again")
	}
	return nil
}
