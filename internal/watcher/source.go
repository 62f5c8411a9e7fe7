package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher modes reported by Mode.
const (
	ModeFsnotify = "fsnotify"
	ModePolling  = "polling"
)

// SourceWatcher reports changes to a set of source files.
type SourceWatcher struct {
	opts      Options
	files     map[string]struct{}
	ordered   []string
	dirs      []string
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}

	mu      sync.Mutex
	stopped bool
	dropped atomic.Uint64
}

// NewSourceWatcher creates a watcher for the given files. Paths are made
// absolute; duplicates are ignored.
func NewSourceWatcher(paths []string, opts Options) (*SourceWatcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files to watch")
	}
	opts = opts.WithDefaults()

	w := &SourceWatcher{
		opts:      opts,
		files:     make(map[string]struct{}, len(paths)),
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve absolute path: %w", err)
		}
		if _, ok := w.files[abs]; ok {
			continue
		}
		w.files[abs] = struct{}{}
		w.ordered = append(w.ordered, abs)
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for d := range dirs {
		w.dirs = append(w.dirs, d)
	}
	sort.Strings(w.dirs)

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		} else {
			w.fsw = fsw
		}
	}
	return w, nil
}

// Mode reports whether the watcher uses fsnotify or polling.
func (w *SourceWatcher) Mode() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return ModeFsnotify
	}
	return ModePolling
}

// Files returns the watched paths in the order they were given.
func (w *SourceWatcher) Files() []string {
	return append([]string(nil), w.ordered...)
}

// Start watches until ctx is done or Stop is called.
func (w *SourceWatcher) Start(ctx context.Context) error {
	go w.forward(ctx)

	if w.fsw != nil {
		if err := w.addDirs(); err != nil {
			slog.Warn("watcher_fallback_polling", slog.String("error", err.Error()))
			w.mu.Lock()
			_ = w.fsw.Close()
			w.fsw = nil
			w.mu.Unlock()
		}
	}

	slog.Info("watcher_started",
		slog.String("mode", w.Mode()),
		slog.Int("files", len(w.ordered)))

	if w.Mode() == ModeFsnotify {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *SourceWatcher) addDirs() error {
	for _, d := range w.dirs {
		if err := w.fsw.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}
	return nil
}

func (w *SourceWatcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *SourceWatcher) runPolling(ctx context.Context) error {
	p := newPoller(w.ordered)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			events, err := p.check()
			if err != nil {
				w.emitError(err)
			}
			for _, ev := range events {
				w.debouncer.Add(ev)
			}
		}
	}
}

// handle filters fsnotify events down to the watched files.
func (w *SourceWatcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if _, ok := w.files[path]; !ok {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
}

func (w *SourceWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *SourceWatcher) emit(batch []FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- batch:
	default:
		n := w.dropped.Add(1)
		slog.Warn("watcher_buffer_full",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("dropped_batches", n))
	}
}

func (w *SourceWatcher) emitError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Events returns debounced batches of changes.
func (w *SourceWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *SourceWatcher) Errors() <-chan error {
	return w.errors
}

// DroppedBatches returns how many batches were lost to a full buffer.
func (w *SourceWatcher) DroppedBatches() uint64 {
	return w.dropped.Load()
}

// Stop releases resources and closes Events and Errors. Safe to call
// multiple times.
func (w *SourceWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	close(w.events)
	close(w.errors)
	return nil
}
