package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan []FileEvent, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(timeout):
		t.Fatal("timeout waiting for batch")
		return nil
	}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// When: one event is added
	d.Add(FileEvent{Path: "/docs/guide.md", Operation: OpModify})

	// Then: it is emitted alone after the window
	batch := receive(t, d.Output(), time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "/docs/guide.md", batch[0].Path)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncer_BurstForOneFile_Coalesces(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: "/docs/guide.md", Operation: OpModify})
		time.Sleep(5 * time.Millisecond)
	}

	batch := receive(t, d.Output(), time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "/b.md", Operation: OpModify})
	d.Add(FileEvent{Path: "/a.md", Operation: OpCreate})

	batch := receive(t, d.Output(), time.Second)
	require.Len(t, batch, 2)
	assert.Equal(t, "/a.md", batch[0].Path)
	assert.Equal(t, "/b.md", batch[1].Path)
}

func TestDebouncer_CreateThenDelete_NoEvent(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "/tmp.md", Operation: OpCreate})
	d.Add(FileEvent{Path: "/tmp.md", Operation: OpDelete})

	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected batch: %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		first, next Operation
		want        Operation
		keep        bool
	}{
		{OpCreate, OpModify, OpCreate, true},
		{OpCreate, OpDelete, 0, false},
		{OpDelete, OpCreate, OpModify, true},
		{OpModify, OpDelete, OpDelete, true},
		{OpRename, OpCreate, OpCreate, true},
		{OpModify, OpModify, OpModify, true},
	}
	for _, tt := range tests {
		t.Run(tt.first.String()+"+"+tt.next.String(), func(t *testing.T) {
			got, keep := merge(tt.first, tt.next)
			assert.Equal(t, tt.keep, keep)
			if keep {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDebouncer_FullOutputKeepsEventsPending(t *testing.T) {
	// Given: a debouncer whose output channel is full
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Stop()
	for i := 0; i < cap(d.output); i++ {
		d.output <- []FileEvent{{Path: "/filler.md", Operation: OpModify}}
	}

	// When: an event is flushed while nobody reads
	d.Add(FileEvent{Path: "/docs/new.md", Operation: OpCreate})
	time.Sleep(50 * time.Millisecond)
	d.Add(FileEvent{Path: "/docs/new.md", Operation: OpModify})

	// Then: the event is still pending, merged with the later one
	d.mu.Lock()
	pending := d.pending["/docs/new.md"]
	d.mu.Unlock()
	assert.Equal(t, OpCreate, pending.Operation)

	// Then: once the consumer drains, the event is delivered
	for i := 0; i < cap(d.output); i++ {
		receive(t, d.Output(), time.Second)
	}
	batch := receive(t, d.Output(), time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "/docs/new.md", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "/a.md", Operation: OpModify})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "/b.md", Operation: OpModify})

	_, ok := <-d.Output()
	assert.False(t, ok, "output is closed and pending events are discarded")
}
