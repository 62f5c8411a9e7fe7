// Package watcher rebuilds corpora when their source files change.
//
// A SourceWatcher observes a fixed set of files. It watches their parent
// directories with fsnotify so that editors which save by rename are still
// seen, and falls back to polling file size and modification time when
// fsnotify is unavailable. Events are debounced into batches and handed to
// a Rebuilder, which maps each changed file to the corpora built from it.
//
// Usage:
//
//	w, err := watcher.NewSourceWatcher(paths, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx) }()
//	return watcher.NewRebuilder(sources, build).Run(ctx, w)
package watcher
