package embed

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"

	// DefaultOllamaKeepAlive keeps the model loaded between the batches
	// of one corpus build.
	DefaultOllamaKeepAlive = "5m"

	// OllamaConnectTimeout bounds model resolution and dimension detection.
	OllamaConnectTimeout = 30 * time.Second

	OllamaPoolSize = 4
)

// FallbackOllamaModels are tried in order when the configured model is
// not installed. Corpora record the model they were built with, so a
// fallback shows up as a model mismatch in doctor.
var FallbackOllamaModels = []string{
	"mxbai-embed-large",
	"all-minilm",
}

// OllamaConfig configures the Ollama embedder. Zero fields take defaults
// in NewOllamaEmbedder.
type OllamaConfig struct {
	Host           string
	Model          string
	FallbackModels []string

	// Dimensions skips detection when set. It must match the corpus
	// being queried.
	Dimensions int

	// KeepAlive is passed through as keep_alive on every embed call.
	KeepAlive string

	Timeout    time.Duration
	MaxRetries int

	// SkipHealthCheck leaves the model unresolved until the first call.
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns the config used for embeddings.provider: ollama.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		FallbackModels: FallbackOllamaModels,
		KeepAlive:      DefaultOllamaKeepAlive,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
	}
}

// ollamaEmbedRequest is the body of POST /api/embed. Input is a string
// for a single chunk and a []string for a batch.
type ollamaEmbedRequest struct {
	Model     string `json:"model"`
	Input     any    `json:"input"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

// ollamaEmbedResponse carries one vector per input, in input order.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []ollamaModel `json:"models"`
}

type ollamaModel struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ollamaErrorMessage extracts the "error" field Ollama puts in non-200
// replies, falling back to the raw body.
func ollamaErrorMessage(body []byte) string {
	var reply struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &reply); err == nil && reply.Error != "" {
		return reply.Error
	}
	return strings.TrimSpace(string(body))
}
