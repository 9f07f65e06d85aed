package service

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
	"fund-transfers/internal/memstore"
)

func newAccountService() *AccountService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAccountService(memstore.New(time.Second, logger), logger)
}

func TestCreateAccount(t *testing.T) {
	svc := newAccountService()
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, 42, decimal.RequireFromString("100.25"), domain.GBP)
	require.NoError(t, err)
	assert.Equal(t, int64(42), created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := svc.GetAccount(ctx, "42")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("100.25")))
	assert.Equal(t, domain.GBP, got.Currency)

	_, err = svc.CreateAccount(ctx, 42, decimal.Zero, domain.GBP)
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateAccount))
}

func TestCreateAccountValidation(t *testing.T) {
	svc := newAccountService()
	ctx := context.Background()

	cases := []struct {
		name     string
		id       int64
		balance  decimal.Decimal
		currency domain.Currency
		code     errors.ErrorCode
	}{
		{"negative balance", 1, decimal.NewFromInt(-1), domain.EUR, errors.InvalidAmount},
		{"balance over limit", 1, decimal.NewFromInt(10_000_000_001), domain.EUR, errors.InvalidAmount},
		{"balance finer than stored scale", 1, decimal.RequireFromString("10.000000001"), domain.EUR, errors.InvalidAmount},
		{"zero id", 0, decimal.Zero, domain.EUR, errors.InvalidAccountID},
		{"unknown currency", 1, decimal.Zero, domain.Currency("CHF"), errors.InvalidCurrency},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateAccount(ctx, tc.id, tc.balance, tc.currency)
			require.Error(t, err)
			assert.Equal(t, tc.code, errors.AsAppError(err).Code)
		})
	}
}

func TestGetAccount(t *testing.T) {
	svc := newAccountService()
	ctx := context.Background()

	_, err := svc.GetAccount(ctx, "7")
	assert.True(t, stderrors.Is(err, errors.ErrAccountNotFound))

	for _, raw := range []string{"abc", "-3", "0", ""} {
		_, err := svc.GetAccount(ctx, raw)
		assert.True(t, stderrors.Is(err, errors.ErrInvalidAccountID), "input %q", raw)
	}
}
