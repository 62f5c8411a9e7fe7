package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"time":"2026-01-02T10:00:00.123Z","level":"DEBUG","msg":"offset_cache_rebuilt","records":2}
{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"search_completed","result_count":3,"duration":"2ms"}
not json at all
{"time":"2026-01-02T10:00:02Z","level":"ERROR","msg":"search_failed","corpus":"guide"}
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docrag.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0644))
	return path
}

func TestViewer_TailLastLines(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	entries, err := v.Tail(writeSample(t), 2)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].IsValid)
	assert.Equal(t, "search_failed", entries[1].Msg)
}

func TestViewer_LevelAndPatternFilters(t *testing.T) {
	path := writeSample(t)

	warn := NewViewer(ViewerConfig{Level: "warn", NoColor: true}, &bytes.Buffer{})
	entries, err := warn.Tail(path, 0)
	require.NoError(t, err)
	// invalid lines have no level and pass the level filter
	require.Len(t, entries, 2)
	assert.Equal(t, "search_failed", entries[1].Msg)

	search := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`search_`), NoColor: true}, &bytes.Buffer{})
	entries, err = search.Tail(path, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestViewer_FormatEntry(t *testing.T) {
	var buf bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &buf)

	entries, err := v.Tail(writeSample(t), 0)
	require.NoError(t, err)
	v.Print(entries)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Equal(t, "10:00:00.123 DEBUG offset_cache_rebuilt records=2", string(lines[0]))
	assert.Equal(t, "10:00:01.000 INFO  search_completed duration=2ms result_count=3", string(lines[1]))
	assert.Equal(t, "not json at all", string(lines[2]))
}

func TestViewer_TailMissingFile(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	_, err := v.Tail(filepath.Join(t.TempDir(), "none.log"), 10)
	assert.Error(t, err)
}

func TestViewer_FollowSeesAppendedLines(t *testing.T) {
	// Given: a follower on an existing log
	path := writeSample(t)
	v := NewViewer(ViewerConfig{NoColor: true, PollInterval: 10 * time.Millisecond}, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// When: a line is appended after the follower starts
	require.Eventually(t, func() bool {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return false
		}
		_, _ = f.WriteString(`{"time":"2026-01-02T10:00:03Z","level":"INFO","msg":"build_completed"}` + "\n")
		_ = f.Close()

		select {
		case e := <-entries:
			return e.Msg == "build_completed"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	// Then: cancelling stops the follower cleanly
	cancel()
	assert.NoError(t, <-done)
}
