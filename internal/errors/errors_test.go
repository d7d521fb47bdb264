package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with Error
	err := New(ErrCodeLoadFailed, "load test.txt", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, err)
	assert.Equal(t, originalErr, errors.Unwrap(err))
	assert.True(t, errors.Is(err, originalErr))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "config error",
			err:      New(ErrCodeConfigInvalid, "chunk_size must be positive", nil),
			expected: "[ERR_101_CONFIG_INVALID] chunk_size must be positive",
		},
		{
			name:     "wrapped cause",
			err:      New(ErrCodeLoadFailed, "load a.pdf", errors.New("malformed xref")),
			expected: "[ERR_201_LOAD_FAILED] load a.pdf: malformed xref",
		},
		{
			name:     "wrap reuses message",
			err:      Wrap(ErrCodeFetchFailed, errors.New("status 404")),
			expected: "[ERR_301_FETCH_FAILED] status 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with same code and different messages
	err1 := New(ErrCodeIndexLocked, "index /a locked", nil)
	err2 := New(ErrCodeIndexLocked, "index /b locked", nil)

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
	assert.True(t, errors.Is(fmt.Errorf("run: %w", err1), Sentinel(ErrCodeIndexLocked)))
}

func TestError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeLoadFailed, "load failed", nil)
	err2 := New(ErrCodeFetchFailed, "fetch failed", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestError_WithDetail_AddsContext(t *testing.T) {
	err := New(ErrCodeLoadFailed, "load failed", nil).
		WithDetail("source", "/corpus/a.csv").
		WithDetail("row", "3")

	assert.Equal(t, "/corpus/a.csv", err.Details["source"])
	assert.Equal(t, "3", err.Details["row"])
}

func TestError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeConfigNotFound, CategoryConfig},
		{ErrCodeLoadFailed, CategoryIO},
		{ErrCodeIndexLocked, CategoryIO},
		{ErrCodeFetchFailed, CategoryNetwork},
		{ErrCodeInvalidSplitter, CategoryValidation},
		{ErrCodeDimensionMismatch, CategoryValidation},
		{ErrCodeEmbeddingFailed, CategoryInternal},
		{ErrCodeIndexFailed, CategoryInternal},
		{"bad", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.wantCategory, New(tt.code, "m", nil).Category)
		})
	}
}

func TestError_SeverityFromCode(t *testing.T) {
	assert.Equal(t, SeverityFatal, New(ErrCodeCorruptIndex, "m", nil).Severity)
	assert.Equal(t, SeverityWarning, New(ErrCodeIndexLocked, "m", nil).Severity)
	assert.Equal(t, SeverityError, New(ErrCodeLoadFailed, "m", nil).Severity)

	assert.True(t, IsFatal(fmt.Errorf("open: %w", New(ErrCodeCorruptIndex, "m", nil))))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestGetCode_FindsCodeInChain(t *testing.T) {
	err := fmt.Errorf("pipeline: %w", LoadError("/c/x.pdf", errors.New("eof")))

	assert.Equal(t, ErrCodeLoadFailed, GetCode(err))
	assert.Equal(t, CategoryIO, GetCategory(err))
	assert.Empty(t, GetCode(errors.New("plain")))
}

func TestFormat_IncludesCauseHintAndCode(t *testing.T) {
	err := FetchError("https://example.com", errors.New("status 500")).
		WithSuggestion("Check the URL list in corpusrag.yaml")

	out := Format(err)

	assert.Contains(t, out, "Error: fetch https://example.com")
	assert.Contains(t, out, "Cause: status 500")
	assert.Contains(t, out, "Hint: Check the URL list")
	assert.Contains(t, out, "Code: ERR_301_FETCH_FAILED")
}

func TestFormat_PlainErrorBecomesInternal(t *testing.T) {
	out := Format(errors.New("boom"))

	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, "Code: ERR_501_INTERNAL")
	assert.Empty(t, Format(nil))
}

func TestFormatJSON(t *testing.T) {
	data, err := FormatJSON(LoadError("/c/a.txt", errors.New("permission denied")))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ErrCodeLoadFailed, got["code"])
	assert.Equal(t, "IO", got["category"])
	assert.Equal(t, "permission denied", got["cause"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(New(ErrCodeIndexFailed, "write vectors", nil).WithDetail("dir", "/db"))

	require.Len(t, attrs, 10)
	assert.Equal(t, "error_code", attrs[2])
	assert.Equal(t, ErrCodeIndexFailed, attrs[3])
	assert.Equal(t, []any{"error", "plain"}, LogAttrs(errors.New("plain")))
	assert.Nil(t, LogAttrs(nil))
}
