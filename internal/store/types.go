// Package store provides the nearest-neighbour indexes that map a query
// vector to row ids. Vector i in an index always belongs to row i of the
// corpus row store.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Index kinds.
const (
	KindFlat = "flat"
	KindHNSW = "hnsw"
)

// Index is an append-only nearest-neighbour index over fixed-dimension
// vectors. Distances are squared L2: lower is closer.
type Index interface {
	// Add appends vectors; the first gets id Total(), the next Total()+1, ...
	Add(vectors [][]float32) error

	// Search returns up to k (distance, id) pairs, nearest first.
	Search(query []float32, k int) (distances []float32, ids []int64, err error)

	// Total returns the number of stored vectors.
	Total() int

	// Dimensions returns the vector dimension.
	Dimensions() int

	// Save persists the index to path.
	Save(path string) error
}

// Config selects and tunes an index.
type Config struct {
	// Kind is "flat" (exact scan) or "hnsw" (approximate graph). Default: flat.
	Kind string

	// Dimensions is the vector dimension.
	Dimensions int

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 20)
	EfSearch int
}

// New creates an empty index.
func New(cfg Config) (Index, error) {
	switch cfg.Kind {
	case "", KindFlat:
		return NewFlatIndex(cfg.Dimensions)
	case KindHNSW:
		return NewHNSWIndex(cfg)
	default:
		return nil, fmt.Errorf("unknown index kind %q (use: flat, hnsw)", cfg.Kind)
	}
}

// Load reads an index of the given kind from path.
func Load(kind, path string) (Index, error) {
	switch kind {
	case "", KindFlat:
		return LoadFlatIndex(path)
	case KindHNSW:
		return LoadHNSWIndex(path)
	default:
		return nil, fmt.Errorf("unknown index kind %q (use: flat, hnsw)", kind)
	}
}

// FileName returns the artifact name for an index kind.
func FileName(kind string) string {
	if kind == KindHNSW {
		return "vectors.hnsw"
	}
	return "vectors.flat"
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (rebuild the corpus with the current embedder)", e.Expected, e.Got)
}

func checkDims(expected int, vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != expected {
			return ErrDimensionMismatch{Expected: expected, Got: len(v)}
		}
	}
	return nil
}

// squaredL2 is the faiss IndexFlatL2 distance.
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// atomicWrite creates path via a temp file and rename.
func atomicWrite(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename index file: %w", err)
	}
	return nil
}
