package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrConfiguration, "FAL_KEY not configured")
	assert.Equal(t, "[CONFIGURATION] FAL_KEY not configured", err.Error())

	withCause := NewError(ErrTransport, "download failed").WithCause(errors.New("connection refused"))
	assert.Equal(t, "[TRANSPORT] download failed: connection refused", withCause.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(ErrTransport, "upload failed").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestError_DefaultStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrInvalidRequest, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrSegmentationFailed, http.StatusUnprocessableEntity},
		{ErrResponseShape, http.StatusBadGateway},
		{ErrTransport, http.StatusBadGateway},
		{ErrConfiguration, http.StatusInternalServerError},
		{ErrRenderBackend, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, NewError(tt.code, "x").HTTPStatus)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrTransport, "x")))
	assert.False(t, IsRetryable(NewError(ErrSegmentationFailed, "x")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestGetErrorCode_Wrapped(t *testing.T) {
	inner := NewError(ErrSegmentationFailed, "no subject found")
	wrapped := fmt.Errorf("convert: %w", inner)

	require.Equal(t, ErrSegmentationFailed, GetErrorCode(wrapped))
	assert.True(t, IsCode(wrapped, ErrSegmentationFailed))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}
