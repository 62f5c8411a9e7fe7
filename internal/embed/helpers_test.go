package embed

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// mockEmbedder encodes each text's length into a 2-d vector and counts calls.
type mockEmbedder struct {
	batchCalls atomic.Int64
	inFlight   atomic.Int64
	maxFlight  atomic.Int64
	failOn     string

	mu      sync.Mutex
	batches [][]string
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxFlight.Load()
		if n <= cur || m.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.batches = append(m.batches, texts)
	m.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if m.failOn != "" && t == m.failOn {
			return nil, fmt.Errorf("boom on %q", t)
		}
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int                  { return 2 }
func (m *mockEmbedder) ModelName() string                { return "mock-model" }
func (m *mockEmbedder) Available(_ context.Context) bool { return true }
func (m *mockEmbedder) Close() error                     { return nil }
