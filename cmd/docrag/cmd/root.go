// Package cmd provides the CLI commands for docrag.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/logging"
	"github.com/Aman-CERP/docrag/internal/profiling"
	"github.com/Aman-CERP/docrag/pkg/version"
)

var (
	debugMode      bool
	projectDir     string
	loggingCleanup func()

	profileOpts profiling.Options
	profiler    *profiling.Session
)

// NewRootCmd creates the root command for the docrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docrag",
		Short: "Build document corpora and retrieve context for LLM prompts",
		Long: `docrag turns markdown guides, article collections and template catalogues
into embedded corpora, and answers top-K similarity queries over them.

Corpora are declared in .docrag.yaml. Build them once with 'docrag build',
then query with 'docrag search', 'docrag ask', or expose them to agents
with 'docrag serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docrag version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging (also written to stderr)")
	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory containing .docrag.yaml")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newOffsetsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startProfilingAndLogging(cmd *cobra.Command, args []string) error {
	if err := startLogging(cmd, args); err != nil {
		return err
	}
	if !profileOpts.Enabled() {
		return nil
	}
	p, err := profiling.Start(profileOpts)
	if err != nil {
		return fmt.Errorf("failed to start profiling: %w", err)
	}
	profiler = p
	return nil
}

func stopProfilingAndLogging(cmd *cobra.Command, args []string) error {
	stopProfiling()
	return stopLogging(cmd, args)
}

func stopProfiling() {
	if profiler == nil {
		return
	}
	if err := profiler.Stop(); err != nil {
		slog.Warn("profile_write_failed", slog.String("error", err.Error()))
	}
	profiler = nil
}

// startLogging routes slog to the rotating log file. Nothing is written to
// stdout so that serve keeps a clean protocol stream.
func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	if lvl := os.Getenv("DOCRAG_LOG_LEVEL"); lvl != "" && !debugMode {
		cfg.Level = lvl
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	if debugMode {
		slog.Debug("debug_logging_enabled", slog.String("log_file", cfg.FilePath))
	}
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), derrors.FormatForCLI(err))
	}
	stopProfiling()
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}
