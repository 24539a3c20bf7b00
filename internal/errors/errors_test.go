package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	coreErr := New(ErrCodeNotFound, "resource not found: corpus:en", originalErr)

	require.NotNil(t, coreErr)
	assert.Equal(t, originalErr, errors.Unwrap(coreErr))
	assert.True(t, errors.Is(coreErr, originalErr))
}

func TestCoreError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "versioning error",
			code:     ErrCodeVersionConflict,
			message:  "version 1.0.0 is not newer than latest",
			expected: "[ERR_602_VERSION_CONFLICT] version 1.0.0 is not newer than latest",
		},
		{
			name:     "not found",
			code:     ErrCodeNotFound,
			message:  "corpus:en not found",
			expected: "[ERR_604_NOT_FOUND] corpus:en not found",
		},
		{
			name:     "search error",
			code:     ErrCodeSemanticNotReady,
			message:  "semantic index still building",
			expected: "[ERR_701_SEMANTIC_NOT_READY] semantic index still building",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestCoreError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeNotFound, "resource A not found", nil)
	err2 := New(ErrCodeNotFound, "resource B not found", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestCoreError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeNotFound, "resource not found", nil)
	err2 := New(ErrCodeVersionConflict, "conflict", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestCoreError_WithDetails_AddsContext(t *testing.T) {
	err := New(ErrCodeNotFound, "resource not found", nil)

	err = err.WithDetail("resource_id", "corpus:en")
	err = err.WithDetail("version", "1.0.0")

	assert.Equal(t, "corpus:en", err.Details["resource_id"])
	assert.Equal(t, "1.0.0", err.Details["version"])
}

func TestCoreError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeBackend, "cold store unavailable", nil)

	err = err.WithSuggestion("retry with backoff")

	assert.Equal(t, "retry with backoff", err.Suggestion)
}

func TestCoreError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeCacheWrite, CategoryIO},
		{ErrCodeCorruptIndex, CategoryIO},
		{ErrCodeInvalidInput, CategoryValidation},
		{ErrCodeDimensionMismatch, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeLockTimeout, CategoryVersioning},
		{ErrCodeVersionConflict, CategoryVersioning},
		{ErrCodeSemanticNotReady, CategorySearch},
		{ErrCodeEmptySemanticIdx, CategorySearch},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestCoreError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeCorruptIndex, SeverityFatal},
		{ErrCodeCorruption, SeverityFatal},
		{ErrCodeEmptySemanticIdx, SeverityFatal},
		{ErrCodeNotFound, SeverityError},
		{ErrCodeLockTimeout, SeverityWarning}, // retryable, so warning
		{ErrCodeBackend, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestCoreError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantRetryable bool
	}{
		{ErrCodeLockTimeout, true},
		{ErrCodeBackend, true},
		{ErrCodeCacheWrite, true},
		{ErrCodeNotFound, false},
		{ErrCodeConfigInvalid, false},
		{ErrCodeCorruptIndex, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesCoreErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	coreErr := Wrap(ErrCodeInternal, originalErr)

	require.NotNil(t, coreErr)
	assert.Equal(t, ErrCodeInternal, coreErr.Code)
	assert.Equal(t, "something went wrong", coreErr.Message)
	assert.Equal(t, originalErr, coreErr.Cause)
}

func TestNotFound_CreatesNotFoundError(t *testing.T) {
	err := NotFound("corpus:en not found")

	assert.Equal(t, ErrCodeNotFound, err.Code)
	assert.True(t, IsNotFound(err))
}

func TestContentMissing_SetsKeyDetail(t *testing.T) {
	err := ContentMissing("corpus:content:abcd")

	assert.Equal(t, ErrCodeContentMissing, err.Code)
	assert.Equal(t, "corpus:content:abcd", err.Details["key"])
}

func TestContentCorrupt_SetsKeyDetail(t *testing.T) {
	err := ContentCorrupt("corpus:content:abcd")

	assert.Equal(t, ErrCodeContentCorrupt, err.Code)
	assert.Equal(t, "corpus:content:abcd", err.Details["key"])
}

func TestBackendError_IsRetryableAndPreservesCause(t *testing.T) {
	cause := errors.New("disk unavailable")
	err := BackendError(cause)

	assert.Equal(t, CategoryIO, err.Category)
	assert.True(t, err.Retryable)
	assert.Equal(t, cause, err.Cause)
}

func TestValidationError_CreatesValidationCategoryError(t *testing.T) {
	err := ValidationError("query cannot be empty")

	assert.Equal(t, CategoryValidation, err.Category)
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable CoreError",
			err:      New(ErrCodeLockTimeout, "timeout", nil),
			expected: true,
		},
		{
			name:     "non-retryable CoreError",
			err:      New(ErrCodeNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "wrapped retryable error",
			err:      Wrap(ErrCodeBackend, errors.New("wrapped")),
			expected: true,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "fatal corruption error",
			err:      New(ErrCodeCorruptIndex, "index corrupt", nil),
			expected: true,
		},
		{
			name:     "fatal empty semantic index",
			err:      New(ErrCodeEmptySemanticIdx, "num_embeddings=0", nil),
			expected: true,
		},
		{
			name:     "non-fatal error",
			err:      New(ErrCodeNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}
