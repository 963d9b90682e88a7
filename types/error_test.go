package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := NewError(ErrValidation, "notes too short")
	assert.Equal(t, "[VALIDATION] notes too short", err.Error())

	cause := errors.New("connection reset")
	err = NewError(ErrStoreUnavailable, "save failed").WithCause(cause)
	assert.Equal(t, "[STORE_UNAVAILABLE] save failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestError_Metadata(t *testing.T) {
	err := NewError(ErrSessionExpired, "session expired").
		WithSession("s-123").
		WithRetryable(false)

	assert.Equal(t, "s-123", err.SessionID)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, ErrSessionExpired, GetErrorCode(err))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrStoreUnavailable, "timeout").WithRetryable(true)))
	assert.False(t, IsRetryable(NewError(ErrValidation, "bad input")))
	assert.False(t, IsRetryable(errors.New("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestGetErrorCode_WrappedPlainError(t *testing.T) {
	// Wrapping through fmt loses the code; callers must keep *Error at the top.
	wrapped := fmt.Errorf("outer: %w", NewError(ErrValidation, "inner"))
	assert.Equal(t, ErrorCode(""), GetErrorCode(wrapped))

	var structured *Error
	require.True(t, errors.As(wrapped, &structured))
	assert.Equal(t, ErrValidation, structured.Code)
}
