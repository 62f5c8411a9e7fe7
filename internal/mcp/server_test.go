package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/corpus"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

const guideDoc = `## Getting Started

Install the tool.

## Config Files

Edit the file.
`

// newTestCorpus builds a markdown corpus with the static embedder.
func newTestCorpus(t *testing.T, name string) Corpus {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, name+".md")
	require.NoError(t, os.WriteFile(src, []byte(guideDoc), 0644))

	e := embed.NewStaticEmbedder(32)
	b := corpus.NewBuilder(e, corpus.BuilderOptions{
		DataDir:  filepath.Join(dir, "data"),
		Chunking: chunk.DefaultOptions(),
	})
	_, err := b.Build(context.Background(), corpus.Spec{Name: name, Source: src, Path: name + ".md"})
	require.NoError(t, err)

	c, err := corpus.Open(b.Dir(name), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	s, err := search.NewSearcher(e, c, search.WithTitleField("section"))
	require.NoError(t, err)
	return Corpus{Name: name, Kind: "markdown", Searcher: s}
}

// =============================================================================
// TS01: Construction and tool listing
// =============================================================================

func TestNewServer_RequiresCorpora(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)

	_, err = NewServer([]Corpus{{Name: "guide"}})
	assert.Error(t, err, "a corpus without a searcher is rejected")
}

func TestToolName(t *testing.T) {
	assert.Equal(t, "search_guide", ToolName("guide"))
	assert.Equal(t, "search_ui_templates", ToolName("ui-templates"))
}

func TestListTools_OnePerCorpusPlusShared(t *testing.T) {
	// Given: two corpora
	s, err := NewServer([]Corpus{newTestCorpus(t, "guide"), newTestCorpus(t, "design-notes")})
	require.NoError(t, err)

	// When: listing tools
	tools := s.ListTools()

	// Then: search tools come first, in corpus order
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"search_guide", "search_design_notes", ToolListCorpora, ToolPrepareContext}, names)
	assert.NotNil(t, s.MCPServer())
}

func TestDescribe_UsesConfiguredDescription(t *testing.T) {
	assert.Equal(t, "custom", describe(Corpus{Name: "x", Description: "custom"}))
	assert.Contains(t, describe(Corpus{Name: "ui", Kind: "templates"}), "template")
	assert.Contains(t, describe(Corpus{Name: "blog", Kind: "articles"}), "chunk_index")
	assert.Contains(t, describe(Corpus{Name: "guide", Kind: "markdown"}), "anchor")
}

// =============================================================================
// TS02: Tool calls
// =============================================================================

func TestCallTool_Search(t *testing.T) {
	s, err := NewServer([]Corpus{newTestCorpus(t, "guide")})
	require.NoError(t, err)

	// When: searching with the exact text of the second chunk
	res, err := s.CallTool(context.Background(), "search_guide", map[string]any{
		"query": "## Config Files\n\nEdit the file.",
		"top_k": 1,
	})
	require.NoError(t, err)

	// Then: the answer, context and result rows are populated
	out, ok := res.(SearchOutput)
	require.True(t, ok)
	assert.Equal(t, "Found 1 relevant results in guide.", out.Answer)
	assert.Equal(t, "[1] Config Files:\n## Config Files\n\nEdit the file.", out.Context)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "guide-1", out.Results[0]["id"])
	assert.Equal(t, "guide.md", out.Results[0]["path"])
	score, ok := out.Results[0]["score"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 0, score, 1e-5)
}

func TestCallTool_TopKClamped(t *testing.T) {
	s, err := NewServer([]Corpus{newTestCorpus(t, "guide")})
	require.NoError(t, err)

	res, err := s.CallTool(context.Background(), "search_guide", map[string]any{"query": "install", "top_k": 500})
	require.NoError(t, err)
	assert.Len(t, res.(SearchOutput).Results, 2, "a corpus with two rows returns at most two")
}

func TestCallTool_Errors(t *testing.T) {
	s, err := NewServer([]Corpus{newTestCorpus(t, "guide")})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		tool string
		args map[string]any
		code int
	}{
		{"empty query", "search_guide", map[string]any{"query": "  "}, ErrCodeInvalidParams},
		{"wrong type", "search_guide", map[string]any{"query": 12}, ErrCodeInvalidParams},
		{"unknown tool", "search_nothing", map[string]any{"query": "x"}, ErrCodeMethodNotFound},
		{"empty request", ToolPrepareContext, map[string]any{}, ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CallTool(ctx, tt.tool, tt.args)
			require.Error(t, err)
			assert.Equal(t, tt.code, MapError(err).Code)
		})
	}
}

func TestCallTool_ListCorpora(t *testing.T) {
	s, err := NewServer([]Corpus{newTestCorpus(t, "zeta"), newTestCorpus(t, "alpha")})
	require.NoError(t, err)

	res, err := s.CallTool(context.Background(), ToolListCorpora, nil)
	require.NoError(t, err)

	out := res.(ListCorporaOutput)
	require.Len(t, out.Corpora, 2)
	assert.Equal(t, "alpha", out.Corpora[0].Name)
	assert.Equal(t, "search_alpha", out.Corpora[0].Tool)
	assert.Equal(t, 2, out.Corpora[0].Rows)
	assert.Equal(t, "static-32", out.Corpora[0].Model)
	assert.Equal(t, 32, out.Corpora[0].Dimensions)
	assert.NotEmpty(t, out.Corpora[0].BuildID)
}

func TestCallTool_PrepareContext(t *testing.T) {
	s, err := NewServer([]Corpus{newTestCorpus(t, "guide"), newTestCorpus(t, "notes")})
	require.NoError(t, err)

	res, err := s.CallTool(context.Background(), ToolPrepareContext, map[string]any{
		"request": "how do I install it",
		"top_k":   1,
	})
	require.NoError(t, err)

	out := res.(PrepareContextOutput)
	require.Len(t, out.Sections, 2)
	assert.Equal(t, "guide", out.Sections[0].Corpus)
	assert.Equal(t, "notes", out.Sections[1].Corpus)
	for _, sec := range out.Sections {
		assert.Empty(t, sec.Error)
		assert.Len(t, sec.Results, 1)
		assert.NotEmpty(t, sec.Context)
	}
}

func TestCallTool_CanceledContext(t *testing.T) {
	s, err := NewServer([]Corpus{newTestCorpus(t, "guide")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.CallTool(ctx, "search_guide", map[string]any{"query": "install"})
	require.Error(t, err)
	assert.Equal(t, ErrCodeTimeout, MapError(err).Code)
}

func TestServe_UnknownTransport(t *testing.T) {
	s, err := NewServer([]Corpus{newTestCorpus(t, "guide")})
	require.NoError(t, err)

	err = s.Serve(context.Background(), "http")
	assert.ErrorContains(t, err, "unknown transport")
}

func TestToOutput_NoResults(t *testing.T) {
	out := toOutput("guide", "", nil)
	assert.Equal(t, "No relevant context found.", out.Answer)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
}

func TestCallTool_RecordsMetrics(t *testing.T) {
	s, err := NewServer([]Corpus{newTestCorpus(t, "guide")})
	require.NoError(t, err)
	m := telemetry.NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()
	s.SetMetrics(m)

	_, err = s.CallTool(context.Background(), "search_guide", map[string]any{"query": "install"})
	require.NoError(t, err)
	_, err = s.CallTool(context.Background(), "search_guide", map[string]any{"query": ""})
	require.Error(t, err)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.TotalQueries, "rejected queries are not recorded")
	assert.Equal(t, int64(1), snap.CorpusCounts["guide"])
}
