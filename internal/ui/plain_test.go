package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_Progress(t *testing.T) {
	// Given: a plain renderer over a buffer
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))
	require.NoError(t, r.Start(context.Background()))

	// When: progress is reported, including a duplicate
	r.UpdateProgress(ProgressEvent{Corpus: "guide", Stage: StageChunking})
	r.UpdateProgress(ProgressEvent{Corpus: "guide", Stage: StageEmbedding, Current: 100, Total: 250})
	r.UpdateProgress(ProgressEvent{Corpus: "guide", Stage: StageEmbedding, Current: 100, Total: 250})
	require.NoError(t, r.Stop())

	// Then: each distinct event is one line
	assert.Equal(t, "[CHUNK] guide\n[EMBED] guide 100/250\n", buf.String())
}

func TestPlainRenderer_CompleteAndFail(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	r.Complete(CompletionStats{
		Corpus: "guide", Rows: 42, Model: "static-64", Dimensions: 64,
		Index: "flat", Backend: "jsonl", Duration: 1500 * time.Millisecond,
	})
	r.Fail("ui", errors.New("source missing"))

	assert.Equal(t,
		"Built guide: 42 rows, static-64 (64 dims), flat index, jsonl rows in 1.5s\n"+
			"ERROR: ui: source missing\n",
		buf.String())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "12.3s", formatDuration(12300*time.Millisecond))
	assert.Equal(t, "2m", formatDuration(2*time.Minute))
	assert.Equal(t, "1m 5s", formatDuration(65*time.Second))
}
