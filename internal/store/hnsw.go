package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex implements Index using the coder/hnsw pure Go graph.
// Node keys are row ids, assigned in insertion order.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config
	count  int
}

var _ Index = (*HNSWIndex)(nil)

// hnswMetadata is persisted beside the graph in <path>.meta.
type hnswMetadata struct {
	Count  int
	Config Config
}

// NewHNSWIndex creates an empty graph index using L2 distance.
func NewHNSWIndex(cfg Config) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", cfg.Dimensions)
	}
	cfg.Kind = KindHNSW
	if cfg.M == 0 {
		cfg.M = 16 // coder/hnsw default recommendation
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20 // coder/hnsw default
	}

	return &HNSWIndex{graph: newGraph(cfg), config: cfg}, nil
}

func newGraph(cfg Config) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.EuclideanDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25 // default level generation factor (1/ln(M))
	return graph
}

// Add implements Index.
func (s *HNSWIndex) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	if err := checkDims(s.config.Dimensions, vectors); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		s.graph.Add(hnsw.MakeNode(uint64(s.count), vec))
		s.count++
	}
	return nil
}

// Search implements Index. Results are re-ranked by exact squared L2 so
// scores match FlatIndex for the same neighbours.
func (s *HNSWIndex) Search(query []float32, k int) ([]float32, []int64, error) {
	if len(query) != s.config.Dimensions {
		return nil, nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Handle empty graph
	if s.graph.Len() == 0 || k <= 0 {
		return []float32{}, []int64{}, nil
	}

	nodes := s.graph.Search(query, k)

	type hit struct {
		id   int64
		dist float32
	}
	hits := make([]hit, 0, len(nodes))
	for _, node := range nodes {
		hits = append(hits, hit{id: int64(node.Key), dist: squaredL2(query, node.Value)})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].dist < hits[b].dist })

	distances := make([]float32, len(hits))
	ids := make([]int64, len(hits))
	for i, h := range hits {
		distances[i] = h.dist
		ids[i] = h.id
	}
	return distances, ids, nil
}

// Total implements Index.
func (s *HNSWIndex) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Dimensions implements Index.
func (s *HNSWIndex) Dimensions() int {
	return s.config.Dimensions
}

// Save persists the graph to path and its metadata to path + ".meta".
// Uses atomic save (temp file + rename).
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err := atomicWrite(path, func(f *os.File) error {
		w := bufio.NewWriter(f)
		if err := s.graph.Export(w); err != nil {
			return fmt.Errorf("failed to export graph: %w", err)
		}
		return w.Flush()
	})
	if err != nil {
		return err
	}

	meta := hnswMetadata{Count: s.count, Config: s.config}
	if err := atomicWrite(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	}); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// LoadHNSWIndex reads a graph written by Save.
func LoadHNSWIndex(path string) (*HNSWIndex, error) {
	meta, err := readHNSWMetadata(path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	graph := newGraph(meta.Config)
	// Use bufio.Reader because coder/hnsw Import requires io.ByteReader
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	if graph.Len() != meta.Count {
		slog.Warn("hnsw_count_mismatch",
			slog.String("path", path),
			slog.Int("graph_nodes", graph.Len()),
			slog.Int("meta_count", meta.Count))
		meta.Count = graph.Len()
	}

	return &HNSWIndex{graph: graph, config: meta.Config, count: meta.Count}, nil
}

func readHNSWMetadata(path string) (hnswMetadata, error) {
	var meta hnswMetadata

	file, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return meta, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	return meta, nil
}
