package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassification(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"config", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"document read", ErrCodeDocumentRead, CategoryIO, SeverityWarning, true},
		{"corrupt state", ErrCodeCorruptState, CategoryIO, SeverityFatal, false},
		{"embedding", ErrCodeEmbeddingFailed, CategoryExternal, SeverityWarning, true},
		{"dimension", ErrCodeDimensionMismatch, CategoryValidation, SeverityError, false},
		{"in flight", ErrCodeUpdateInFlight, CategoryInternal, SeverityWarning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	// Given: an underlying error
	cause := fmt.Errorf("disk full")

	// When: I wrap it
	err := Wrap(ErrCodeManifestWrite, cause)

	// Then: unwrapping yields the cause
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), ErrCodeManifestWrite)
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeCacheIO, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	// Given: two errors with the same code, different messages
	a := New(ErrCodeUpdateInFlight, "first", nil)
	b := New(ErrCodeUpdateInFlight, "second", nil)

	// Then: errors.Is matches by code
	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, New(ErrCodeCacheIO, "other", nil)))
}

func TestCorruptStateError_IsFatal(t *testing.T) {
	err := CorruptStateError("manifest", fmt.Errorf("bad json"))
	assert.True(t, IsFatal(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "manifest", err.Details["store"])
}

func TestDocumentReadError_Retryable(t *testing.T) {
	err := DocumentReadError("docs/a.md", fmt.Errorf("permission denied"))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "docs/a.md", err.Details["path"])
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeQueryEmpty, GetCode(New(ErrCodeQueryEmpty, "empty", nil)))
	assert.Equal(t, "", GetCode(fmt.Errorf("plain")))
}
