package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	// Business rejections raised by the transfer engine.
	SameAccountTransfer ErrorCode = "same_account_transfer"
	AccountNotFound     ErrorCode = "account_not_found"
	InsufficientBalance ErrorCode = "insufficient_balance"
	CurrencyMismatch    ErrorCode = "currency_mismatch"

	// Infrastructure faults. Only these are eligible for caller-driven retry.
	Busy          ErrorCode = "busy"
	InternalError ErrorCode = "internal_error"

	// Request shape and lookups.
	InvalidInput        ErrorCode = "invalid_input"
	InvalidAmount       ErrorCode = "invalid_amount"
	InvalidCurrency     ErrorCode = "invalid_currency"
	InvalidAccountID    ErrorCode = "invalid_account_id"
	TransactionNotFound ErrorCode = "transaction_not_found"
	DuplicateAccount    ErrorCode = "duplicate_account"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so that errors.Is(err, ErrBusy) holds for any busy error,
// whatever its message or details.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy carrying details. The receiver is left untouched
// so the predefined errors below stay safe to share.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidAmount, InvalidCurrency, InvalidAccountID,
		SameAccountTransfer, InsufficientBalance, CurrencyMismatch:
		return http.StatusBadRequest
	case AccountNotFound, TransactionNotFound:
		return http.StatusNotFound
	case DuplicateAccount:
		return http.StatusConflict
	case Busy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether retrying the same request may give a different outcome.
// Business rejections are deterministic in the input state and never are.
func (e *AppError) Retryable() bool {
	return e.Code == Busy || e.Code == InternalError
}

// AsAppError unwraps err to an *AppError, wrapping anything else as an internal error.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(InternalError, "an unexpected error occurred").WithDetails(err.Error())
}

// Predefined errors for common cases
var (
	ErrSameAccountTransfer = NewAppError(SameAccountTransfer, "source and target accounts are the same")
	ErrAccountNotFound     = NewAppError(AccountNotFound, "account not found")
	ErrInsufficientBalance = NewAppError(InsufficientBalance, "insufficient balance for the transaction")
	ErrCurrencyMismatch    = NewAppError(CurrencyMismatch, "source and target account currencies must match the transaction currency")
	ErrBusy                = NewAppError(Busy, "accounts are locked by a concurrent transfer, retry later")
	ErrInvalidAmount       = NewAppError(InvalidAmount, "amount must be at least 1")
	ErrInvalidCurrency     = NewAppError(InvalidCurrency, "currency must be one of EUR, GBP, USD")
	ErrInvalidAccountID    = NewAppError(InvalidAccountID, "account ID must be a positive integer")
	ErrTransactionNotFound = NewAppError(TransactionNotFound, "transaction not found")
	ErrDuplicateAccount    = NewAppError(DuplicateAccount, "account already exists")
)
