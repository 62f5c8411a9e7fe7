package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: Error wrapping preserves original error
func TestDocragError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	err := New(ErrCodeFileNotFound, "rows.jsonl not found", originalErr)

	require.NotNil(t, err)
	assert.Equal(t, originalErr, errors.Unwrap(err))
	assert.True(t, errors.Is(err, originalErr))
}

func TestDocragError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{"config error", ErrCodeConfigNotFound, "config file not found", "[ERR_101_CONFIG_NOT_FOUND] config file not found"},
		{"io error", ErrCodeIndexNotFound, "vectors.flat missing", "[ERR_204_INDEX_NOT_FOUND] vectors.flat missing"},
		{"network error", ErrCodeNetworkTimeout, "request timed out", "[ERR_301_NETWORK_TIMEOUT] request timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, tt.message, nil).Error())
		})
	}
}

func TestDocragError_Is_MatchesByCode(t *testing.T) {
	sentinel := New(ErrCodeCorpusDiverged, "", nil)
	err := fmt.Errorf("search: %w", New(ErrCodeCorpusDiverged, "index has 5 vectors, store has 3 rows", nil))

	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, New(ErrCodeFileCorrupt, "", nil)))
}

func TestNew_DerivesCategorySeverityRetryable(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeCorruptIndex, CategoryIO, SeverityFatal, false},
		{ErrCodeCorpusDiverged, CategoryIO, SeverityFatal, false},
		{ErrCodeRateLimited, CategoryNetwork, SeverityWarning, true},
		{ErrCodeQueryEmpty, CategoryValidation, SeverityError, false},
		{ErrCodeEmbeddingFailed, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestHelpers_WorkThroughWrappedChain(t *testing.T) {
	err := fmt.Errorf("batch 3: %w", NetworkError("connection reset", nil))

	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
	assert.Equal(t, ErrCodeNetworkTimeout, GetCode(err))
	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := IOError("row-store missing", nil).
		WithDetail("path", "/tmp/rows.jsonl").
		WithSuggestion("Run 'docrag build' first")

	assert.Equal(t, "/tmp/rows.jsonl", err.Details["path"])
	assert.Equal(t, "Run 'docrag build' first", err.Suggestion)
}

func TestFormatForCLI(t *testing.T) {
	err := New(ErrCodeIndexNotFound, "no index for corpus docs", nil).
		WithSuggestion("Run 'docrag build docs'")

	out := FormatForCLI(err)
	assert.Contains(t, out, "Error: no index for corpus docs")
	assert.Contains(t, out, "Hint: Run 'docrag build docs'")
	assert.Contains(t, out, "Code: ERR_204_INDEX_NOT_FOUND")

	assert.Contains(t, FormatForCLI(errors.New("boom")), "ERR_501_INTERNAL")
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	data, err := FormatJSON(New(ErrCodeRateLimited, "slow down", errors.New("429")))
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"code":"ERR_303_RATE_LIMITED"`)
	assert.Contains(t, s, `"cause":"429"`)
	assert.Contains(t, s, `"retryable":true`)
}
