package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{ErrSameAccountTransfer, http.StatusBadRequest},
		{ErrInsufficientBalance, http.StatusBadRequest},
		{ErrCurrencyMismatch, http.StatusBadRequest},
		{ErrInvalidAmount, http.StatusBadRequest},
		{ErrAccountNotFound, http.StatusNotFound},
		{ErrTransactionNotFound, http.StatusNotFound},
		{ErrDuplicateAccount, http.StatusConflict},
		{ErrBusy, http.StatusServiceUnavailable},
		{NewAppError(InternalError, "boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.err.Code), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.HTTPStatus())
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, ErrBusy.Retryable())
	assert.True(t, NewAppError(InternalError, "storage down").Retryable())

	for _, err := range []*AppError{ErrSameAccountTransfer, ErrAccountNotFound, ErrInsufficientBalance, ErrCurrencyMismatch} {
		assert.False(t, err.Retryable(), string(err.Code))
	}
}

func TestWithDetailsDoesNotMutateSentinel(t *testing.T) {
	detailed := ErrBusy.WithDetails("lock timeout")

	assert.Equal(t, "lock timeout", detailed.Details)
	assert.Empty(t, ErrBusy.Details)
	assert.True(t, stderrors.Is(detailed, ErrBusy))
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("transfer: %w", ErrInsufficientBalance.WithDetails("balance=50"))

	assert.True(t, stderrors.Is(wrapped, ErrInsufficientBalance))
	assert.False(t, stderrors.Is(wrapped, ErrCurrencyMismatch))
}

func TestAsAppError(t *testing.T) {
	assert.Nil(t, AsAppError(nil))
	assert.Same(t, ErrAccountNotFound, AsAppError(ErrAccountNotFound))

	appErr := AsAppError(stderrors.New("connection reset"))
	assert.Equal(t, InternalError, appErr.Code)
	assert.Equal(t, "connection reset", appErr.Details)
}
