package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"
)

// BuildFunc rebuilds one corpus by name.
type BuildFunc func(ctx context.Context, corpus string) error

// EventSource is the part of SourceWatcher a Rebuilder consumes.
type EventSource interface {
	Events() <-chan []FileEvent
	Errors() <-chan error
}

var _ EventSource = (*SourceWatcher)(nil)

// Rebuilder maps changed source files to corpora and rebuilds them.
type Rebuilder struct {
	sources map[string][]string
	build   BuildFunc
	logger  *slog.Logger
}

// NewRebuilder creates a Rebuilder. sources maps a source file to the
// corpora built from it.
func NewRebuilder(sources map[string][]string, build BuildFunc) *Rebuilder {
	abs := make(map[string][]string, len(sources))
	for path, names := range sources {
		if p, err := filepath.Abs(path); err == nil {
			path = p
		}
		abs[path] = append(abs[path], names...)
	}
	return &Rebuilder{sources: abs, build: build, logger: slog.Default()}
}

// Affected returns the sorted, de-duplicated corpora touched by events.
// Deleted or renamed-away sources are skipped so the last good build stays
// in place until the file comes back.
func (r *Rebuilder) Affected(events []FileEvent) []string {
	seen := make(map[string]struct{})
	for _, ev := range events {
		if ev.Operation == OpDelete || ev.Operation == OpRename {
			r.logger.Warn("source_removed",
				slog.String("path", ev.Path),
				slog.String("op", ev.Operation.String()))
			continue
		}
		for _, name := range r.sources[ev.Path] {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle rebuilds every corpus affected by a batch. A failed build does
// not stop the others; all failures are returned together.
func (r *Rebuilder) Handle(ctx context.Context, events []FileEvent) error {
	var errs []error
	for _, name := range r.Affected(events) {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		r.logger.Info("rebuild_started", slog.String("corpus", name))
		if err := r.build(ctx, name); err != nil {
			r.logger.Error("rebuild_failed",
				slog.String("corpus", name),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("rebuild %s: %w", name, err))
			continue
		}
		r.logger.Info("rebuild_completed",
			slog.String("corpus", name),
			slog.Duration("duration", time.Since(start)))
	}
	return errors.Join(errs...)
}

// Run handles batches from src until ctx is done or src closes. Build
// failures are logged and do not end the loop.
func (r *Rebuilder) Run(ctx context.Context, src EventSource) error {
	events, errs := src.Events(), src.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			_ = r.Handle(ctx, batch)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}
