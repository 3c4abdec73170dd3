package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindSurvivesWrapping(t *testing.T) {
	base := NewError(KindPolicy, CodeGuestLimitReached, "limit reached")
	wrapped := fmt.Errorf("create category: %w", base)

	assert.Equal(t, KindPolicy, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindPolicy))
	assert.Equal(t, CodeGuestLimitReached, CodeOf(wrapped))
	assert.True(t, errors.Is(wrapped, &Error{Code: CodeGuestLimitReached}))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "", CodeOf(errors.New("boom")))
}

func TestNotFoundAndInvalid(t *testing.T) {
	nf := NotFound("category", "c1")
	assert.Equal(t, KindNotFound, nf.Kind)
	assert.Contains(t, nf.Error(), `category "c1" not found`)

	inv := Invalid(ErrInvalidAmount)
	assert.Equal(t, KindValidation, inv.Kind)
	assert.ErrorIs(t, inv, ErrInvalidAmount)
}
