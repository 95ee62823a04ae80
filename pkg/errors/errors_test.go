package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_PreservesInnerStack(t *testing.T) {
	inner := New(ErrorTypeData, "bad integer")
	outer := Wrap(inner, ErrorTypeValidation, "record rejected")

	require.NotNil(t, outer)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, stderrors.Is(outer, inner))
	assert.Equal(t, ErrorTypeValidation, TypeOf(outer))
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeData, "unused"))
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorType
	}{
		{400, ErrorTypeData},
		{401, ErrorTypeAuthentication},
		{403, ErrorTypeAuthentication},
		{404, ErrorTypeNotFound},
		{408, ErrorTypeTimeout},
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeConnection},
		{502, ErrorTypeConnection},
		{504, ErrorTypeTimeout},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "body")
			assert.Equal(t, tt.expected, err.Type)
			assert.Equal(t, tt.status, err.Details["status_code"])
			assert.Contains(t, err.Error(), fmt.Sprintf("status %d", tt.status))
		})
	}
}

func TestFromHTTPStatus_TruncatesBody(t *testing.T) {
	body := make([]byte, 2048)
	for i := range body {
		body[i] = 'x'
	}
	err := FromHTTPStatus(500, string(body))
	assert.Less(t, len(err.Message), 600)
}

func TestTypeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("boom")))
	assert.False(t, IsRetryable(fmt.Errorf("boom")))
}
