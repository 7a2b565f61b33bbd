package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternalFailure, KindOf(errors.New("boom")))

	err := fmt.Errorf("checkout: %w", New(KindInsufficientStock, "not enough stock"))
	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.True(t, IsKind(err, KindInsufficientStock))
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New(KindNotFound, "coupon not found").WithCode("COUPON_NOT_FOUND")
	err := Wrap(KindInternalFailure, inner, "validate coupon")

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "COUPON_NOT_FOUND", CodeOf(err))
	assert.Nil(t, Wrap(KindInternalFailure, nil, "nothing"))
}

func TestErrorsIsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(KindValidationFailed, "cart is empty").WithCode("EMPTY_CART"))

	assert.True(t, errors.Is(err, &Error{Kind: KindValidationFailed}))
	assert.True(t, errors.Is(err, &Error{Kind: KindValidationFailed, Code: "EMPTY_CART"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindValidationFailed, Code: "BELOW_MINIMUM"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindConflict}))
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause, "load order")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "load order: connection reset", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(KindNotFound))
	assert.Equal(t, http.StatusConflict, HTTPStatus(KindInsufficientStock))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(KindValidationFailed))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(KindExternalUnavailable))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindInternalFailure))
}
