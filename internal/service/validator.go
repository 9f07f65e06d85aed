package service

import (
	"github.com/shopspring/decimal"

	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
)

// MinTransferAmount is the smallest amount a single transfer may move.
var MinTransferAmount = decimal.NewFromInt(1)

type TransferRequest struct {
	SourceAccountID int64
	TargetAccountID int64
	Amount          decimal.Decimal
	Currency        domain.Currency
}

// Validate checks the request shape. It says nothing about whether the accounts
// involved allow the transfer; that is ValidateTransfer's job.
func (r *TransferRequest) Validate() error {
	if r.SourceAccountID <= 0 || r.TargetAccountID <= 0 {
		return errors.ErrInvalidAccountID
	}
	if r.Amount.LessThan(MinTransferAmount) {
		return errors.ErrInvalidAmount.WithDetails("got " + r.Amount.String())
	}
	if !domain.FitsMoneyScale(r.Amount) {
		return errors.NewAppErrorf(errors.InvalidAmount, "amount must have at most %d decimal places", domain.MoneyScale).
			WithDetails("got " + r.Amount.String())
	}
	if !r.Currency.Valid() {
		return errors.ErrInvalidCurrency
	}
	return nil
}

// ValidateTransfer decides whether req may be applied to the given account
// snapshots. A nil account means the lookup found nothing. The checks run in a
// fixed order and the first failure is returned.
func ValidateTransfer(req *TransferRequest, source, target *domain.Account) error {
	if req.SourceAccountID == req.TargetAccountID {
		return errors.ErrSameAccountTransfer
	}

	if source == nil || target == nil {
		return errors.ErrAccountNotFound
	}

	if source.Balance.LessThan(req.Amount) {
		return errors.ErrInsufficientBalance.WithDetails(
			"balance=" + source.Balance.String() + " amount=" + req.Amount.String())
	}

	if req.Currency != source.Currency || req.Currency != target.Currency {
		return errors.ErrCurrencyMismatch.WithDetails(
			"source=" + source.Currency.String() + " target=" + target.Currency.String() + " transfer=" + req.Currency.String())
	}

	return nil
}
