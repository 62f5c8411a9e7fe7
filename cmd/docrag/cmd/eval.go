package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/mcp"
	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/validation"
)

type evalOptions struct {
	topK       int
	jsonOutput bool
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval <queries.yaml>",
		Short: "Measure retrieval quality against a query set",
		Long: `Run every query of a YAML query set through the search tools and
report which expected rows were retrieved.

Tier 1 queries must pass and negative queries must not crash; tier 2
results are reported but do not fail the run. The summary includes the
mean reciprocal rank over tier 1 and tier 2 queries.`,
		Example: `  docrag eval queries.yaml
  docrag eval queries.yaml --top-k 5 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runEval(ctx, cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", validation.DefaultTopK, "Rows inspected per query")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runEval(ctx context.Context, cmd *cobra.Command, path string, opts evalOptions) error {
	set, err := validation.LoadQueries(path)
	if err != nil {
		return derrors.ValidationError("invalid query set", err)
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

	result := validation.NewValidator(srv, opts.topK).RunAll(ctx, set)

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		if err := out.JSON(result); err != nil {
			return err
		}
	} else {
		printEval(out, result)
	}

	if result.Failed() {
		return derrors.New(derrors.ErrCodeSearchFailed,
			fmt.Sprintf("%d of %d required queries failed",
				(result.Tier1.Total-result.Tier1.Pass)+(result.Negative.Total-result.Negative.Pass),
				result.Tier1.Total+result.Negative.Total), nil)
	}
	return nil
}

func printEval(out *output.Writer, result *validation.Result) {
	for _, r := range result.Results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		label := r.Spec.ID
		if r.Spec.Name != "" {
			label += " " + r.Spec.Name
		}
		out.Text(fmt.Sprintf("[%s] %s (%dms)", status, label, r.DurationMS))
		if !r.Passed {
			if r.Error != "" {
				out.Text("       error: " + r.Error)
			} else {
				out.Text("       expected: " + strings.Join(r.Spec.Expected, ", "))
				out.Text("       got:      " + strings.Join(r.TopResults, ", "))
			}
		}
	}

	out.Newline()
	out.KeyValue([][2]string{
		{"Tier 1", tierLine(result.Tier1)},
		{"Tier 2", tierLine(result.Tier2)},
		{"Negative", tierLine(result.Negative)},
		{"MRR", fmt.Sprintf("%.3f", result.MRR)},
	})
}

func tierLine(s validation.TierSummary) string {
	if s.Total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d (%.0f%%)", s.Pass, s.Total, 100*float64(s.Pass)/float64(s.Total))
}
