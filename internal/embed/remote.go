package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
)

// statusError is a non-200 reply from an embedding endpoint.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embedding failed with status %d: %s", e.status, strings.TrimSpace(e.body))
}

// retryableEmbedError retries transport failures, 429 and 5xx replies.
// Other 4xx replies and context cancellation are final.
func retryableEmbedError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	status := 0
	var se *statusError
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &se):
		status = se.status
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status == 0 {
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}

// retryConfig is the backoff used around every remote embedding call.
func retryConfig(maxRetries int) derrors.RetryConfig {
	cfg := derrors.DefaultRetryConfig()
	cfg.MaxRetries = maxRetries
	cfg.InitialDelay = 250 * time.Millisecond
	cfg.Jitter = true
	cfg.ShouldRetry = retryableEmbedError
	return cfg
}

// embedNonBlank calls embed once with the non-blank texts and places the
// results back in input order. Blank texts get zero vectors, since remote
// providers reject empty input.
func embedNonBlank(texts []string, dims int, embed func([]string) ([][]float32, error)) ([][]float32, error) {
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	var idx []int
	var batch []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		idx = append(idx, i)
		batch = append(batch, text)
	}

	if len(batch) > 0 {
		vecs, err := embed(batch)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
		}
		for j, i := range idx {
			results[i] = vecs[j]
		}
		if dims == 0 {
			dims = len(vecs[0])
		}
	}

	for i := range results {
		if results[i] == nil {
			results[i] = make([]float32, dims)
		}
	}
	return results, nil
}
