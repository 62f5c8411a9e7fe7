// Package validation evaluates retrieval quality against a data-driven
// query set. Each query names a corpus and the rows expected near the top;
// queries run through the MCP tool interface so the evaluation exercises
// the same path agents use.
//
// Query sets are YAML:
//
//	tier1:
//	  - id: T1-Q1
//	    name: install steps
//	    corpus: guide
//	    query: how do I install it
//	    expected: [guide-0]
//	tier2: [...]
//	negative:
//	  - id: N1
//	    corpus: guide
//	    query: ""
//
// Tier 1 queries must pass; tier 2 queries are tracked but advisory.
// Negative queries only need to not crash.
package validation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docrag/internal/mcp"
)

// DefaultTopK is the number of rows inspected per query.
const DefaultTopK = 10

// QuerySpec defines a query with expected results.
type QuerySpec struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name,omitempty"`
	Corpus   string   `yaml:"corpus" json:"corpus"`
	Query    string   `yaml:"query" json:"query"`
	Expected []string `yaml:"expected" json:"expected,omitempty"` // values of Field; a trailing * matches a prefix
	Field    string   `yaml:"field" json:"field,omitempty"`       // row field to match, default "id"
	Notes    string   `yaml:"notes" json:"notes,omitempty"`
	Tier     int      `yaml:"-" json:"tier"`
}

// QuerySet holds all queries of one evaluation file.
type QuerySet struct {
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadQueries reads a query set from path.
func LoadQueries(path string) (*QuerySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file %s: %w", path, err)
	}
	return ParseQueries(data)
}

// ParseQueries parses a YAML query set and assigns tiers.
func ParseQueries(data []byte) (*QuerySet, error) {
	var set QuerySet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse queries YAML: %w", err)
	}

	for i := range set.Tier1 {
		set.Tier1[i].Tier = 1
	}
	for i := range set.Tier2 {
		set.Tier2[i].Tier = 2
	}
	for i := range set.Negative {
		set.Negative[i].Tier = 0
	}

	for _, spec := range set.All() {
		if spec.Corpus == "" {
			return nil, fmt.Errorf("query %s: corpus is required", spec.ID)
		}
		if spec.Tier > 0 && len(spec.Expected) == 0 {
			return nil, fmt.Errorf("query %s: expected is required outside the negative tier", spec.ID)
		}
	}
	return &set, nil
}

// All returns every query in tier order.
func (s *QuerySet) All() []QuerySpec {
	all := make([]QuerySpec, 0, len(s.Tier1)+len(s.Tier2)+len(s.Negative))
	all = append(all, s.Tier1...)
	all = append(all, s.Tier2...)
	return append(all, s.Negative...)
}

// TestResult captures the outcome of a single query.
type TestResult struct {
	Spec       QuerySpec `json:"spec"`
	Passed     bool      `json:"passed"`
	DurationMS int64     `json:"duration_ms"`
	TopResults []string  `json:"top_results"`
	MatchedAt  int       `json:"matched_at"` // rank of the first match, -1 if none
	Error      string    `json:"error,omitempty"`
}

// TierSummary counts passes in one tier.
type TierSummary struct {
	Pass  int `json:"pass"`
	Total int `json:"total"`
}

// Result captures a full evaluation run.
type Result struct {
	Timestamp time.Time    `json:"timestamp"`
	Results   []TestResult `json:"results"`
	Tier1     TierSummary  `json:"tier1"`
	Tier2     TierSummary  `json:"tier2"`
	Negative  TierSummary  `json:"negative"`

	// MRR is the mean reciprocal rank over tier 1 and tier 2 queries.
	MRR float64 `json:"mrr"`
}

// Failed reports whether any tier 1 or negative query failed.
func (r *Result) Failed() bool {
	return r.Tier1.Pass < r.Tier1.Total || r.Negative.Pass < r.Negative.Total
}

// ToolCaller is the part of the MCP server the validator needs.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

var _ ToolCaller = (*mcp.Server)(nil)

// Validator runs query sets against an MCP server.
type Validator struct {
	server ToolCaller
	topK   int
}

// NewValidator creates a validator inspecting topK rows per query.
func NewValidator(server ToolCaller, topK int) *Validator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Validator{server: server, topK: topK}
}

// RunQuery executes a single query.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	start := time.Now()
	result := TestResult{
		Spec:       spec,
		MatchedAt:  -1,
		TopResults: []string{},
	}

	resp, err := v.server.CallTool(ctx, mcp.ToolName(spec.Corpus), map[string]any{
		"query": spec.Query,
		"top_k": v.topK,
	})
	result.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		if spec.Tier == 0 {
			result.Passed = true
		} else {
			result.Error = err.Error()
		}
		return result
	}

	result.TopResults = extractValues(resp, spec.Field)
	if len(spec.Expected) == 0 {
		result.Passed = true
		return result
	}
	result.Passed, result.MatchedAt = checkExpected(result.TopResults, spec.Expected)
	return result
}

// RunAll executes every query of the set.
func (v *Validator) RunAll(ctx context.Context, set *QuerySet) *Result {
	result := &Result{Timestamp: time.Now()}

	var ranked int
	var reciprocal float64
	for _, spec := range set.All() {
		if ctx.Err() != nil {
			break
		}
		tr := v.RunQuery(ctx, spec)
		result.Results = append(result.Results, tr)

		summary := &result.Negative
		switch spec.Tier {
		case 1:
			summary = &result.Tier1
		case 2:
			summary = &result.Tier2
		}
		summary.Total++
		if tr.Passed {
			summary.Pass++
		}

		if spec.Tier > 0 {
			ranked++
			if tr.MatchedAt >= 0 {
				reciprocal += 1 / float64(tr.MatchedAt+1)
			}
		}
	}
	if ranked > 0 {
		result.MRR = reciprocal / float64(ranked)
	}
	return result
}

// extractValues returns the field value of every result row, in rank order.
func extractValues(resp any, field string) []string {
	if field == "" {
		field = "id"
	}
	out, ok := resp.(mcp.SearchOutput)
	if !ok {
		return []string{}
	}
	values := make([]string, 0, len(out.Results))
	for _, row := range out.Results {
		v, ok := row[field]
		if !ok || v == nil {
			values = append(values, "")
			continue
		}
		values = append(values, fmt.Sprint(v))
	}
	return values
}

// checkExpected returns the rank of the first result matching any
// expected value.
func checkExpected(results, expected []string) (bool, int) {
	for i, value := range results {
		if value == "" {
			continue
		}
		for _, exp := range expected {
			if matches(value, exp) {
				return true, i
			}
		}
	}
	return false, -1
}

func matches(value, expected string) bool {
	if prefix, ok := strings.CutSuffix(expected, "*"); ok {
		return strings.HasPrefix(value, prefix)
	}
	return value == expected
}
