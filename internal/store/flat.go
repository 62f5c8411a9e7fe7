package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"sync"
)

// FlatIndex is an exact index: every search scans all vectors.
type FlatIndex struct {
	mu   sync.RWMutex
	dims int
	data []float32 // row-major, len = total*dims
}

var _ Index = (*FlatIndex)(nil)

// flatFile is the on-disk form.
type flatFile struct {
	Dimensions int
	Data       []float32
}

// NewFlatIndex creates an empty exact index.
func NewFlatIndex(dims int) (*FlatIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", dims)
	}
	return &FlatIndex{dims: dims}, nil
}

// Add implements Index.
func (f *FlatIndex) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	if err := checkDims(f.dims, vectors); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Search implements Index.
func (f *FlatIndex) Search(query []float32, k int) ([]float32, []int64, error) {
	if len(query) != f.dims {
		return nil, nil, ErrDimensionMismatch{Expected: f.dims, Got: len(query)}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	total := len(f.data) / f.dims
	k = min(k, total)
	if k <= 0 {
		return []float32{}, []int64{}, nil
	}

	type hit struct {
		id   int64
		dist float32
	}
	hits := make([]hit, total)
	for i := 0; i < total; i++ {
		row := f.data[i*f.dims : (i+1)*f.dims]
		hits[i] = hit{id: int64(i), dist: squaredL2(query, row)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].dist < hits[b].dist })

	distances := make([]float32, k)
	ids := make([]int64, k)
	for i := 0; i < k; i++ {
		distances[i] = hits[i].dist
		ids[i] = hits[i].id
	}
	return distances, ids, nil
}

// Total implements Index.
func (f *FlatIndex) Total() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.data) / f.dims
}

// Dimensions implements Index.
func (f *FlatIndex) Dimensions() int {
	return f.dims
}

// Save implements Index.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return atomicWrite(path, func(file *os.File) error {
		w := bufio.NewWriter(file)
		if err := gob.NewEncoder(w).Encode(flatFile{Dimensions: f.dims, Data: f.data}); err != nil {
			return fmt.Errorf("encode flat index: %w", err)
		}
		return w.Flush()
	})
}

// LoadFlatIndex reads an index written by Save.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	var ff flatFile
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&ff); err != nil {
		return nil, fmt.Errorf("decode flat index: %w", err)
	}
	if ff.Dimensions <= 0 || len(ff.Data)%ff.Dimensions != 0 {
		return nil, fmt.Errorf("corrupt flat index %s: %d values for dimension %d", path, len(ff.Data), ff.Dimensions)
	}
	return &FlatIndex{dims: ff.Dimensions, data: ff.Data}, nil
}
