package ui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func newTestModel() *buildModel {
	m := newBuildModel(NewProgressTracker(), "docrag build")
	m.styles = NoColorStyles()
	return m
}

func TestBuildModel_ViewBeforeProgress(t *testing.T) {
	m := newTestModel()
	view := m.View()

	assert.Contains(t, view, "docrag build")
	assert.Contains(t, view, "Preparing...")
}

func TestBuildModel_ViewShowsProgress(t *testing.T) {
	m := newTestModel()
	m.tracker.Set(ProgressEvent{Corpus: "guide", Stage: StageEmbedding, Current: 1, Total: 4})
	_, _ = m.Update(progressMsg(ProgressEvent{Corpus: "guide", Stage: StageEmbedding, Current: 1, Total: 4}))

	view := m.View()
	assert.Contains(t, view, "guide Embedding")
	assert.Contains(t, view, "25%")
	assert.Contains(t, view, "1/4")
}

func TestBuildModel_CompletedAndFailedLinesPersist(t *testing.T) {
	m := newTestModel()
	_, _ = m.Update(completeMsg(CompletionStats{Corpus: "guide", Rows: 3, Model: "static-8", Dimensions: 8,
		Index: "flat", Backend: "jsonl", Duration: time.Second}))
	_, _ = m.Update(failMsg{corpus: "ui", err: errors.New("no source")})

	_, cmd := m.Update(finishMsg{})
	assert.NotNil(t, cmd)
	assert.True(t, m.finished)

	view := m.View()
	assert.Contains(t, view, "✓ Built guide: 3 rows")
	assert.Contains(t, view, "✗ ui: no source")
	assert.NotContains(t, view, "Preparing")
}

func TestBuildModel_WindowResize(t *testing.T) {
	m := newTestModel()
	_, _ = m.Update(tea.WindowSizeMsg{Width: 200, Height: 40})
	assert.Equal(t, 60, m.bar.Width)

	_, _ = m.Update(tea.WindowSizeMsg{Width: 30, Height: 40})
	assert.Equal(t, 20, m.bar.Width)
}
