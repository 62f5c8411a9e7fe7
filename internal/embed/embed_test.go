package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
)

// ============================================================================
// StaticEmbedder
// ============================================================================

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Drag components onto the canvas")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Drag components onto the canvas")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, vectorMagnitude(a), 1e-5)
	assert.Equal(t, "static-64", e.ModelName())
}

func TestStaticEmbedder_EmptyInputIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder(0)
	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
	assert.Zero(t, vectorMagnitude(vec))
}

func TestStaticEmbedder_SimilarTextsAreCloser(t *testing.T) {
	e := NewStaticEmbedder(256)
	ctx := context.Background()

	vecs, err := e.EmbedBatch(ctx, []string{
		"configure the button color",
		"configure the button colour",
		"quarterly revenue spreadsheet",
	})
	require.NoError(t, err)

	near := sqDist(vecs[0], vecs[1])
	far := sqDist(vecs[0], vecs[2])
	assert.Less(t, near, far)
}

func TestStaticEmbedder_Closed(t *testing.T) {
	e := NewStaticEmbedder(8)
	require.NoError(t, e.Close())
	assert.False(t, e.Available(context.Background()))
	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func sqDist(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i] - b[i])
		s += d * d
	}
	return s
}

// ============================================================================
// CachedEmbedder
// ============================================================================

func TestCachedEmbedder_EmbedHitsCache(t *testing.T) {
	inner := &mockEmbedder{}
	c := NewCachedEmbedder(inner, 10)

	_, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.batchCalls.Load())
	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	inner := &mockEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.Embed(ctx, "bb")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}, {3, 1}}, vecs)

	require.Len(t, inner.batches, 2)
	assert.Equal(t, []string{"a", "ccc"}, inner.batches[1])
	assert.Equal(t, "mock-model", c.ModelName())
	assert.Same(t, inner, c.Inner())
}

// ============================================================================
// OpenAIEmbedder
// ============================================================================

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func newOpenAIServer(t *testing.T, handler func(w http.ResponseWriter, req openAIRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeEmbeddings(w http.ResponseWriter, model string, vecs [][]float32, reversed bool) {
	type item struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]item, 0, len(vecs))
	for i, v := range vecs {
		data = append(data, item{Object: "embedding", Embedding: v, Index: i})
	}
	if reversed {
		for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
			data[i], data[j] = data[j], data[i]
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   data,
		"model":  model,
		"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
	})
}

// TS01: OpenAI batch keeps input order
func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, req openAIRequest) {
		assert.Equal(t, "text-embedding-3-small", req.Model)
		vecs := make([][]float32, len(req.Input))
		for i, in := range req.Input {
			vecs[i] = []float32{float32(len(in)), 0, 0}
		}
		writeEmbeddings(w, req.Model, vecs, true)
	})

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Dimensions: 3})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "  ", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 0, 0}, {3, 0, 0}}, vecs)
	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, "text-embedding-3-small", e.ModelName())
}

func TestOpenAIEmbedder_DefaultDimensions(t *testing.T) {
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, e.Dimensions())

	e, err = NewOpenAIEmbedder(OpenAIConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIDimensions, e.Dimensions())
}

func TestOpenAIEmbedder_MissingKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	require.Error(t, err)
	assert.Equal(t, derrors.ErrCodeConfigInvalid, derrors.GetCode(err))
}

func TestOpenAIEmbedder_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newOpenAIServer(t, func(w http.ResponseWriter, req openAIRequest) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		writeEmbeddings(w, req.Model, [][]float32{{1, 2}}, false)
	})

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Dimensions: 2, MaxRetries: 2})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIEmbedder_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newOpenAIServer(t, func(w http.ResponseWriter, _ openAIRequest) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	})

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, MaxRetries: 3})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

// ============================================================================
// OllamaEmbedder
// ============================================================================

func newOllamaServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			list := ollamaTagsResponse{}
			for _, m := range models {
				list.Models = append(list.Models, ollamaModel{Name: m, Size: 274 << 20})
			}
			_ = json.NewEncoder(w).Encode(list)
		case "/api/embed":
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, DefaultOllamaKeepAlive, req.KeepAlive)
			var inputs []string
			switch in := req.Input.(type) {
			case string:
				inputs = []string{in}
			case []any:
				for _, v := range in {
					inputs = append(inputs, v.(string))
				}
			}
			resp := ollamaEmbedResponse{Model: req.Model}
			for _, in := range inputs {
				resp.Embeddings = append(resp.Embeddings, []float32{float32(len(in)), 0, 0, 0})
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_ResolvesModelAndDimensions(t *testing.T) {
	srv := newOllamaServer(t, "nomic-embed-text:latest")

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 4, e.Dimensions())
	assert.True(t, e.Available(context.Background()))

	vecs, err := e.EmbedBatch(context.Background(), []string{"ab", "", "abcd"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0, 0, 0}, vecs[0], "normalized")
	assert.Equal(t, []float32{0, 0, 0, 0}, vecs[1])
}

func TestOllamaEmbedder_FallbackModel(t *testing.T) {
	srv := newOllamaServer(t, "all-minilm:l6-v2")

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 4})
	require.NoError(t, err)
	assert.Equal(t, "all-minilm:l6-v2", e.ModelName())
}

func TestOllamaEmbedder_NoModel(t *testing.T) {
	srv := newOllamaServer(t, "llama3")

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL})
	require.Error(t, err)
	assert.Equal(t, derrors.ErrCodeNetworkUnavailable, derrors.GetCode(err))
}

func TestOllamaEmbedder_ErrorBodyIsSurfaced(t *testing.T) {
	// Given: an Ollama that rejects the model with a JSON error body
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"nomic-embed-text\" not found, try pulling it first"}`))
	}))
	t.Cleanup(srv.Close)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 4, SkipHealthCheck: true})
	require.NoError(t, err)

	// When: embedding
	_, err = e.Embed(context.Background(), "hello")

	// Then: the error carries Ollama's message, not the raw JSON
	require.Error(t, err)
	assert.Contains(t, err.Error(), `model "nomic-embed-text" not found, try pulling it first`)
	assert.NotContains(t, err.Error(), `{"error"`)
}

func TestOllamaErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", ollamaErrorMessage([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "plain text", ollamaErrorMessage([]byte("plain text\n")))
	assert.Equal(t, `{"other":1}`, ollamaErrorMessage([]byte(`{"other":1}`)))
}

// ============================================================================
// BatchEmbed
// ============================================================================

// TS02: Concurrent batches keep input order
func TestBatchEmbed_PreservesOrder(t *testing.T) {
	inner := &mockEmbedder{}
	texts := make([]string, 25)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}

	var progress []int
	vecs, err := BatchEmbed(context.Background(), inner, texts, BatchOptions{
		BatchSize:   4,
		Concurrency: 3,
		Progress:    func(done, total int) { progress = append(progress, done); assert.Equal(t, 25, total) },
	})
	require.NoError(t, err)

	require.Len(t, vecs, 25)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0], fmt.Sprintf("vector %d out of order", i))
	}
	assert.Equal(t, int64(7), inner.batchCalls.Load())
	assert.LessOrEqual(t, inner.maxFlight.Load(), int64(3))
	require.Len(t, progress, 7)
	assert.Equal(t, 25, progress[len(progress)-1])
}

func TestBatchEmbed_FailureReturnsNoPartialResult(t *testing.T) {
	inner := &mockEmbedder{failOn: "bad"}

	vecs, err := BatchEmbed(context.Background(), inner, []string{"a", "b", "bad", "c"}, BatchOptions{BatchSize: 2})
	require.Error(t, err)
	assert.Nil(t, vecs)
	assert.Equal(t, derrors.ErrCodeEmbeddingFailed, derrors.GetCode(err))
}

func TestBatchEmbed_Empty(t *testing.T) {
	vecs, err := BatchEmbed(context.Background(), &mockEmbedder{}, nil, BatchOptions{})
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

// ============================================================================
// Factory
// ============================================================================

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p)

	p, err = ParseProvider(" Static ")
	require.NoError(t, err)
	assert.Equal(t, ProviderStatic, p)

	_, err = ParseProvider("mlx")
	assert.Error(t, err)
}

func TestNewEmbedder_StaticWithCache(t *testing.T) {
	e, err := NewEmbedder(context.Background(), Options{Provider: ProviderStatic, Dimensions: 32, CacheSize: 5})
	require.NoError(t, err)

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	assert.IsType(t, &StaticEmbedder{}, cached.Inner())
	assert.Equal(t, 32, e.Dimensions())
}

func TestNewEmbedder_OpenAIWithoutKeyFails(t *testing.T) {
	_, err := NewEmbedder(context.Background(), Options{Provider: ProviderOpenAI})
	assert.Error(t, err)
}
