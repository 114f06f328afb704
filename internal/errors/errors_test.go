package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(TypeInput, "bad input")
	assert.Equal(t, "[INPUT_ERROR] bad input", err.Error())

	wrapped := Wrap(TypeCheckoutService, "checkout failed", stderrors.New("timeout"))
	assert.Equal(t, "[CHECKOUT_SERVICE] checkout failed: timeout", wrapped.Error())
	assert.Equal(t, "timeout", stderrors.Unwrap(wrapped).Error())
}

func TestIsTypeThroughWrapping(t *testing.T) {
	base := InvalidQuantity(-5)
	wrapped := fmt.Errorf("pricing tokens: %w", base)

	assert.True(t, IsType(wrapped, TypeInvalidQuantity))
	assert.False(t, IsType(wrapped, TypeInvalidAmount))
	assert.False(t, IsType(stderrors.New("plain"), TypeInvalidQuantity))
	assert.False(t, IsType(nil, TypeInvalidQuantity))
}

func TestIsTypeFindsNestedDomainError(t *testing.T) {
	inner := ValidationTransport(stderrors.New("connection refused"))
	outer := Internal("validate coupon", inner)

	assert.True(t, IsType(outer, TypeInternal))
	assert.True(t, IsType(outer, TypeValidationTransport))
	assert.Equal(t, TypeInternal, TypeOf(outer))
}

func TestTypeOfPlainError(t *testing.T) {
	assert.Equal(t, TypeInternal, TypeOf(stderrors.New("boom")))
}

func TestWithContext(t *testing.T) {
	err := CouponInvalid("SPRING")
	require.NotNil(t, err.Context)
	assert.Equal(t, "SPRING", err.Context["code"])
	assert.True(t, err.Is(TypeCouponInvalid))
}
