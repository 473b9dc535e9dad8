package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := New(CodeDuplicateGrant, "consent already granted")

	var domainErr *Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeDuplicateGrant, domainErr.Code)
	assert.Equal(t, "consent already granted", err.Error())
}

func TestErrorFallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeInternal}
	assert.Equal(t, "internal_error", err.Error())
}

func TestWrapPreservesExistingCode(t *testing.T) {
	inner := New(CodeNotFound, "consent record missing")
	wrapped := Wrap(inner, CodeInternal, "lookup failed")

	assert.True(t, HasCode(wrapped, CodeNotFound))
	assert.False(t, HasCode(wrapped, CodeInternal))
	assert.ErrorIs(t, wrapped, inner)
}

func TestWrapAssignsCodeToPlainErrors(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	wrapped := Wrap(inner, CodeInternal, "store unavailable")

	assert.True(t, HasCode(wrapped, CodeInternal))
	assert.ErrorIs(t, wrapped, inner)
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeForbidden, "outside institution scope")
	b := New(CodeForbidden, "different message")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, New(CodeNotFound, "")))
}

func TestHasCodeRejectsPlainErrors(t *testing.T) {
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.False(t, HasCode(nil, CodeInternal))
}
