package watcher

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

type fileSnapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

// poller detects changes to a fixed file set by comparing stat results.
type poller struct {
	files []string
	state map[string]fileSnapshot
}

func newPoller(files []string) *poller {
	p := &poller{files: files, state: make(map[string]fileSnapshot, len(files))}
	for _, f := range files {
		p.state[f] = snapshot(f)
	}
	return p
}

func snapshot(path string) fileSnapshot {
	info, err := os.Stat(path)
	if err != nil {
		return fileSnapshot{}
	}
	return fileSnapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// check returns one event per file whose state changed since the last call.
func (p *poller) check() ([]FileEvent, error) {
	var events []FileEvent
	var errs []error
	now := time.Now()

	for _, f := range p.files {
		cur := snapshot(f)
		if !cur.exists {
			if _, err := os.Stat(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
				continue
			}
		}
		prev := p.state[f]
		p.state[f] = cur

		switch {
		case !prev.exists && cur.exists:
			events = append(events, FileEvent{Path: f, Operation: OpCreate, Timestamp: now})
		case prev.exists && !cur.exists:
			events = append(events, FileEvent{Path: f, Operation: OpDelete, Timestamp: now})
		case cur.exists && (!cur.modTime.Equal(prev.modTime) || cur.size != prev.size):
			events = append(events, FileEvent{Path: f, Operation: OpModify, Timestamp: now})
		}
	}
	return events, errors.Join(errs...)
}
