// Package search answers top-K similarity queries over a built corpus.
//
// The Engine maps a query vector to rows: it asks the vector index for the
// nearest ids and resolves each id through the corpus row store. The
// Searcher adds query embedding and validation on top.
package search

import (
	"encoding/json"
	"sort"
)

// ScoreField is the key the distance is reported under.
const ScoreField = "score"

// Index is the part of a vector index the engine needs.
type Index interface {
	// Search returns up to k (distance, id) pairs, nearest first. Distances
	// are squared L2; an id of -1 marks an empty slot.
	Search(query []float32, k int) ([]float32, []int64, error)

	// Total returns the number of indexed vectors.
	Total() int
}

// Result is one retrieved row.
type Result struct {
	// Score is the squared L2 distance to the query; lower is closer.
	Score float32

	// Fields holds every field of the stored row. Scalar rows appear
	// under "text".
	Fields map[string]any
}

// Get returns a row field.
func (r Result) Get(key string) any {
	return r.Fields[key]
}

// String returns a row field if it is a string, otherwise "".
func (r Result) String(key string) string {
	s, _ := r.Fields[key].(string)
	return s
}

// MarshalJSON flattens the result into {"score": ..., <fields>...}.
// A stored field named "score" is shadowed by the distance.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[ScoreField] = r.Score
	return json.Marshal(out)
}

// FieldNames returns the sorted field names of r, without the score.
func (r Result) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
