package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per update, for CI and pipes.
type PlainRenderer struct {
	mu   sync.Mutex
	out  io.Writer
	last ProgressEvent
}

var _ Renderer = (*PlainRenderer)(nil)

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(_ context.Context) error {
	return nil
}

// UpdateProgress implements Renderer. Repeated identical events are
// printed once.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event == r.last {
		return
	}
	r.last = event

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %s %d/%d\n", event.Stage.Icon(), event.Corpus, event.Current, event.Total)
	} else {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Corpus)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintln(r.out, completionLine(stats))
}

// Fail implements Renderer.
func (r *PlainRenderer) Fail(corpus string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "ERROR: %s: %v\n", corpus, err)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

func completionLine(s CompletionStats) string {
	return fmt.Sprintf("Built %s: %d rows, %s (%d dims), %s index, %s rows in %s",
		s.Corpus, s.Rows, s.Model, s.Dimensions, s.Index, s.Backend, formatDuration(s.Duration))
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(100 * time.Millisecond)
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
