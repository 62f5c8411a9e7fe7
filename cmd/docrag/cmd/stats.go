package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

type statsOptions struct {
	days       int
	topTerms   int
	jsonOutput bool
}

func newStatsCmd() *cobra.Command {
	var opts statsOptions

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show local query statistics",
		Long: `Show query counts per corpus, the latency histogram, the most frequent
query terms and recent queries that retrieved nothing.

Statistics are recorded by 'docrag search' and 'docrag serve' into
<data_dir>/telemetry.db and never leave the machine. Set
DOCRAG_NO_TELEMETRY=1 to stop recording.`,
		Example: `  docrag stats
  docrag stats --days 30 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&opts.topTerms, "terms", 10, "Number of top terms to show")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(cmd *cobra.Command, opts statsOptions) error {
	if opts.days <= 0 {
		return derrors.ValidationError("--days must be positive", nil)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	path := telemetryPath(cfg)
	if !fileExists(path) {
		if opts.jsonOutput {
			return out.JSON(struct{}{})
		}
		out.Status("📊", "No queries recorded yet.")
		return nil
	}

	store, err := telemetry.OpenSQLiteStore(path)
	if err != nil {
		return derrors.IOError("failed to open telemetry database", err)
	}
	defer func() { _ = store.Close() }()

	now := time.Now()
	report, err := store.Report(
		now.AddDate(0, 0, -(opts.days-1)).Format(telemetry.DateLayout),
		now.Format(telemetry.DateLayout),
		opts.topTerms)
	if err != nil {
		return derrors.IOError("failed to read telemetry", err)
	}

	if opts.jsonOutput {
		return out.JSON(report)
	}
	printReport(out, report)
	return nil
}

func printReport(out *output.Writer, r *telemetry.Report) {
	out.Statusf("📊", "Queries %s to %s: %d", r.From, r.To, r.TotalQueries)
	if r.TotalQueries == 0 {
		return
	}

	names := make([]string, 0, len(r.CorpusCounts))
	for name := range r.CorpusCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([][2]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, [2]string{name, fmt.Sprint(r.CorpusCounts[name])})
	}
	out.Newline()
	out.Status("", "Per corpus:")
	out.KeyValue(pairs)

	out.Newline()
	out.Status("", "Latency:")
	labels := map[telemetry.LatencyBucket]string{
		telemetry.BucketP10:   "<10ms",
		telemetry.BucketP50:   "10-50ms",
		telemetry.BucketP100:  "50-100ms",
		telemetry.BucketP500:  "100-500ms",
		telemetry.BucketP1000: ">=500ms",
	}
	pairs = pairs[:0]
	for _, b := range telemetry.Buckets {
		pairs = append(pairs, [2]string{labels[b], fmt.Sprint(r.LatencyDistribution[b])})
	}
	out.KeyValue(pairs)

	if len(r.TopTerms) > 0 {
		out.Newline()
		out.Status("", "Top terms:")
		pairs = pairs[:0]
		for _, tc := range r.TopTerms {
			pairs = append(pairs, [2]string{tc.Term, fmt.Sprint(tc.Count)})
		}
		out.KeyValue(pairs)
	}

	if len(r.ZeroResultQueries) > 0 {
		out.Newline()
		out.Status("", "Recent zero-result queries:")
		for _, z := range r.ZeroResultQueries {
			out.Statusf("", "  [%s] %s", z.Corpus, z.Query)
		}
	}
}
