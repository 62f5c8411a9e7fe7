// Package ui renders corpus build progress in the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a corpus build stage.
type Stage int

const (
	// StageChunking splits the source into rows.
	StageChunking Stage = iota
	// StageEmbedding computes one vector per row.
	StageEmbedding
	// StageWriting persists the row store and index.
	StageWriting
	// StageComplete indicates the corpus is published.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageChunking:
		return "Chunking"
	case StageEmbedding:
		return "Embedding"
	case StageWriting:
		return "Writing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageChunking:
		return "CHUNK"
	case StageEmbedding:
		return "EMBED"
	case StageWriting:
		return "WRITE"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ParseStage maps a builder stage name to a Stage.
func ParseStage(name string) Stage {
	switch name {
	case "chunking":
		return StageChunking
	case "embedding":
		return StageEmbedding
	case "writing":
		return StageWriting
	default:
		return StageComplete
	}
}

// ProgressEvent is a progress update for one corpus.
type ProgressEvent struct {
	Corpus  string
	Stage   Stage
	Current int
	Total   int
}

// CompletionStats summarizes one finished build.
type CompletionStats struct {
	Corpus     string
	Rows       int
	Model      string
	Dimensions int
	Index      string
	Backend    string
	Duration   time.Duration
}

// Renderer displays build progress.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)

	// Complete records a published corpus.
	Complete(stats CompletionStats)

	// Fail records a corpus whose build failed.
	Fail(corpus string, err error)

	Stop() error
}

// Config configures the renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithTitle sets the header shown above the progress bar.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// NewConfig creates a Config for output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output, Title: "docrag build"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the interactive renderer on a terminal and the plain
// renderer for pipes, CI or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
