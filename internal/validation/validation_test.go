package validation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/corpus"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/mcp"
	"github.com/Aman-CERP/docrag/internal/search"
)

const guideDoc = `## Getting Started

Install the tool.

## Config Files

Edit the file.
`

const querySet = `
tier1:
  - id: T1-Q1
    name: config section
    corpus: guide
    query: "## Config Files\n\nEdit the file."
    expected: [guide-1]
tier2:
  - id: T2-Q1
    corpus: guide
    query: "## Config Files\n\nEdit the file."
    expected: [missing-row]
negative:
  - id: N1
    corpus: guide
    query: ""
`

// fakeCaller returns canned rows or an error.
type fakeCaller struct {
	rows []map[string]any
	err  error
	tool string
}

func (f *fakeCaller) CallTool(_ context.Context, name string, _ map[string]any) (any, error) {
	f.tool = name
	if f.err != nil {
		return nil, f.err
	}
	return mcp.SearchOutput{Results: f.rows}, nil
}

func newGuideServer(t *testing.T) *mcp.Server {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(src, []byte(guideDoc), 0644))

	e := embed.NewStaticEmbedder(32)
	b := corpus.NewBuilder(e, corpus.BuilderOptions{DataDir: filepath.Join(dir, "data"), Chunking: chunk.DefaultOptions()})
	_, err := b.Build(context.Background(), corpus.Spec{Name: "guide", Source: src, Path: "guide.md"})
	require.NoError(t, err)

	c, err := corpus.Open(b.Dir("guide"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	s, err := search.NewSearcher(e, c, search.WithTitleField("section"))
	require.NoError(t, err)
	srv, err := mcp.NewServer([]mcp.Corpus{{Name: "guide", Kind: "markdown", Searcher: s}})
	require.NoError(t, err)
	return srv
}

// =============================================================================
// TS01: Query sets
// =============================================================================

func TestParseQueries_AssignsTiers(t *testing.T) {
	set, err := ParseQueries([]byte(querySet))
	require.NoError(t, err)

	all := set.All()
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].Tier)
	assert.Equal(t, 2, all[1].Tier)
	assert.Equal(t, 0, all[2].Tier)
	assert.Equal(t, "## Config Files\n\nEdit the file.", all[0].Query)
}

func TestParseQueries_Rejects(t *testing.T) {
	tests := map[string]string{
		"malformed":        "tier1: [",
		"missing corpus":   "tier1:\n  - id: Q\n    query: x\n    expected: [a]\n",
		"missing expected": "tier2:\n  - id: Q\n    corpus: guide\n    query: x\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQueries([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadQueries_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(querySet), 0644))

	set, err := LoadQueries(path)
	require.NoError(t, err)
	assert.Len(t, set.Tier1, 1)

	_, err = LoadQueries(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// =============================================================================
// TS02: Matching
// =============================================================================

func TestCheckExpected(t *testing.T) {
	results := []string{"guide-0", "guide-10", "guide-1"}

	ok, rank := checkExpected(results, []string{"guide-1"})
	assert.True(t, ok)
	assert.Equal(t, 2, rank, "exact match skips guide-10")

	ok, rank = checkExpected(results, []string{"guide-1*"})
	assert.True(t, ok)
	assert.Equal(t, 1, rank)

	ok, rank = checkExpected(results, []string{"other"})
	assert.False(t, ok)
	assert.Equal(t, -1, rank)
}

func TestRunQuery_UsesFieldAndTool(t *testing.T) {
	f := &fakeCaller{rows: []map[string]any{
		{"id": "ui-3", "name": "Signup"},
		{"id": "ui-7", "name": "Login Form"},
	}}
	v := NewValidator(f, 0)

	r := v.RunQuery(context.Background(), QuerySpec{
		ID: "Q", Corpus: "ui-templates", Query: "login", Expected: []string{"Login*"}, Field: "name", Tier: 1,
	})

	assert.Equal(t, "search_ui_templates", f.tool)
	assert.True(t, r.Passed)
	assert.Equal(t, 1, r.MatchedAt)
	assert.Equal(t, []string{"Signup", "Login Form"}, r.TopResults)
}

func TestRunQuery_ErrorFailsPositiveTier(t *testing.T) {
	v := NewValidator(&fakeCaller{err: errors.New("boom")}, 5)

	r := v.RunQuery(context.Background(), QuerySpec{ID: "Q", Corpus: "guide", Query: "x", Expected: []string{"a"}, Tier: 1})

	assert.False(t, r.Passed)
	assert.Equal(t, "boom", r.Error)
}

// =============================================================================
// TS03: Full run against a real server
// =============================================================================

func TestRunAll_AgainstServer(t *testing.T) {
	set, err := ParseQueries([]byte(querySet))
	require.NoError(t, err)

	result := NewValidator(newGuideServer(t), 2).RunAll(context.Background(), set)

	require.Len(t, result.Results, 3)
	assert.Equal(t, TierSummary{Pass: 1, Total: 1}, result.Tier1)
	assert.Equal(t, TierSummary{Pass: 0, Total: 1}, result.Tier2)
	assert.Equal(t, TierSummary{Pass: 1, Total: 1}, result.Negative)
	assert.Equal(t, 0, result.Results[0].MatchedAt)
	assert.InDelta(t, 0.5, result.MRR, 1e-9, "one rank-1 hit over two ranked queries")
	assert.False(t, result.Failed(), "tier 2 misses are advisory")
}

func TestResult_Failed(t *testing.T) {
	assert.True(t, (&Result{Tier1: TierSummary{Pass: 0, Total: 1}}).Failed())
	assert.True(t, (&Result{Negative: TierSummary{Pass: 1, Total: 2}}).Failed())
	assert.False(t, (&Result{}).Failed())
}
