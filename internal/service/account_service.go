package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
)

type AccountService struct {
	store  domain.Store
	logger *slog.Logger
}

func NewAccountService(store domain.Store, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		logger: logger,
	}
}

func (s *AccountService) CreateAccount(ctx context.Context, accountID int64, initialBalance decimal.Decimal, currency domain.Currency) (*domain.Account, error) {
	s.logger.Info("Creating account", "account_id", accountID, "initial_balance", initialBalance, "currency", currency)

	if initialBalance.IsNegative() {
		return nil, errors.NewAppError(errors.InvalidAmount, "initial balance must not be negative")
	}

	// Validate reasonable limits
	maxInitialBalance := decimal.NewFromInt(10_000_000_000) // 10 billion
	if initialBalance.GreaterThan(maxInitialBalance) {
		return nil, errors.NewAppError(errors.InvalidAmount, "initial balance exceeds maximum limit")
	}

	if !domain.FitsMoneyScale(initialBalance) {
		return nil, errors.NewAppErrorf(errors.InvalidAmount, "initial balance must have at most %d decimal places", domain.MoneyScale)
	}

	if accountID <= 0 {
		return nil, errors.ErrInvalidAccountID
	}

	if !currency.Valid() {
		return nil, errors.ErrInvalidCurrency
	}

	account := &domain.Account{
		ID:       accountID,
		Balance:  initialBalance,
		Currency: currency,
	}

	if err := s.store.Account().CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	id, err := strconv.ParseInt(accountID, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.ErrInvalidAccountID
	}

	return s.store.Account().GetAccount(ctx, id)
}
