package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"mcp error passes through", NewInvalidParamsError("bad"), ErrCodeInvalidParams},
		{"wrapped mcp error", fmt.Errorf("outer: %w", NewMethodNotFoundError("x")), ErrCodeMethodNotFound},
		{"index not found", derrors.New(derrors.ErrCodeIndexNotFound, "no corpus", nil), ErrCodeCorpusNotFound},
		{"unknown corpus", derrors.New(derrors.ErrCodeCorpusUnknown, "no such corpus", nil), ErrCodeCorpusNotFound},
		{"embedding failed", derrors.New(derrors.ErrCodeEmbeddingFailed, "embed", nil), ErrCodeEmbeddingFailed},
		{"file not found", derrors.New(derrors.ErrCodeFileNotFound, "missing", nil), ErrCodeFileNotFound},
		{"diverged", derrors.New(derrors.ErrCodeCorpusDiverged, "diverged", nil), ErrCodeCorpusDiverged},
		{"network category", derrors.NetworkError("down", nil), ErrCodeTimeout},
		{"validation category", derrors.ValidationError("bad input", nil), ErrCodeInvalidParams},
		{"empty query", derrors.New(derrors.ErrCodeQueryEmpty, "query is empty", nil), ErrCodeInvalidParams},
		{"internal", derrors.New(derrors.ErrCodeSearchFailed, "boom", nil), ErrCodeInternalError},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", fmt.Errorf("search: %w", context.Canceled), ErrCodeTimeout},
		{"tool not found", ErrToolNotFound, ErrCodeMethodNotFound},
		{"plain error", errors.New("oops"), ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if assert.NotNil(t, got) {
				assert.Equal(t, tt.code, got.Code)
				assert.NotEmpty(t, got.Message)
			}
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := derrors.New(derrors.ErrCodeIndexNotFound, "corpus guide is not built", nil).
		WithSuggestion("Run 'docrag build guide'")

	got := MapError(err)
	assert.Equal(t, "corpus guide is not built. Run 'docrag build guide'", got.Message)
}

func TestMCPError_Error(t *testing.T) {
	err := &MCPError{Code: ErrCodeInvalidParams, Message: "bad"}
	assert.Equal(t, "MCP error -32602: bad", err.Error())
}
