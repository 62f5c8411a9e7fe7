package embed

import (
	"context"
	"fmt"
	"strings"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOpenAI uses the OpenAI embeddings API (default)
	ProviderOpenAI ProviderType = "openai"

	// ProviderOllama uses a local Ollama server
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (offline, deterministic)
	ProviderStatic ProviderType = "static"
)

// ParseProvider converts a config string to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProviderOpenAI, nil
	case ProviderOpenAI, ProviderOllama, ProviderStatic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (use: openai, ollama, static)", s)
	}
}

// Options selects and configures an embedder.
type Options struct {
	Provider   ProviderType
	Model      string
	Dimensions int

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaHost    string
	MaxRetries    int

	// CacheSize wraps the embedder in an LRU cache when positive.
	CacheSize int
}

// NewEmbedder creates the embedder for opts.Provider. There is no silent
// fallback between providers: a misconfigured provider is an error.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var (
		embedder Embedder
		err      error
	)

	switch opts.Provider {
	case ProviderOpenAI, "":
		embedder, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     opts.OpenAIAPIKey,
			BaseURL:    opts.OpenAIBaseURL,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			MaxRetries: opts.MaxRetries,
		})

	case ProviderOllama:
		cfg := DefaultOllamaConfig()
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		if opts.OllamaHost != "" {
			cfg.Host = opts.OllamaHost
		}
		cfg.Dimensions = opts.Dimensions
		cfg.MaxRetries = opts.MaxRetries
		embedder, err = NewOllamaEmbedder(ctx, cfg)

	case ProviderStatic:
		embedder = NewStaticEmbedder(opts.Dimensions)

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}

	if err != nil {
		return nil, err
	}

	if opts.CacheSize > 0 {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}
	return embedder, nil
}
