package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
	"fund-transfers/internal/events"
)

type TransactionService struct {
	store     domain.Store
	publisher events.Publisher
	logger    *slog.Logger
}

func NewTransactionService(store domain.Store, publisher events.Publisher, logger *slog.Logger) *TransactionService {
	return &TransactionService{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// PerformTransfer moves req.Amount from the source to the target account and records
// the ledger entry. Both balance updates and the entry commit together or not at
// all. Rejections and storage faults are returned as *errors.AppError.
func (s *TransactionService) PerformTransfer(ctx context.Context, req *TransferRequest) (*domain.Transaction, error) {
	s.logger.Info("Processing transfer",
		"source_account_id", req.SourceAccountID,
		"target_account_id", req.TargetAccountID,
		"amount", req.Amount,
		"currency", req.Currency)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Decided before any lock is taken; ValidateTransfer repeats the check in the same position.
	if req.SourceAccountID == req.TargetAccountID {
		s.logger.Warn("Transfer rejected", "reason", errors.SameAccountTransfer, "account_id", req.SourceAccountID)
		return nil, errors.ErrSameAccountTransfer
	}

	var transaction *domain.Transaction
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		// Authoritative balances, read under lock. Never from a cache.
		accounts, err := tx.Account().LockAccounts(ctx, req.SourceAccountID, req.TargetAccountID)
		if err != nil {
			return err
		}

		source := accounts[req.SourceAccountID]
		target := accounts[req.TargetAccountID]
		if err := ValidateTransfer(req, source, target); err != nil {
			return err
		}

		source.Balance = source.Balance.Sub(req.Amount)
		target.Balance = target.Balance.Add(req.Amount)

		if err := tx.Account().SaveAccount(ctx, source); err != nil {
			return err
		}
		if err := tx.Account().SaveAccount(ctx, target); err != nil {
			return err
		}

		transaction = &domain.Transaction{
			SourceAccountID: req.SourceAccountID,
			TargetAccountID: req.TargetAccountID,
			Amount:          req.Amount,
			Currency:        req.Currency,
		}
		return tx.Transaction().CreateTransaction(ctx, transaction)
	})
	if err != nil {
		appErr := errors.AsAppError(err)
		if appErr.Retryable() {
			s.logger.Error("Transfer failed", "code", appErr.Code, "error", appErr.Details)
		} else {
			s.logger.Warn("Transfer rejected", "reason", appErr.Code, "details", appErr.Details)
		}
		return nil, appErr
	}

	s.logger.Info("Transfer completed successfully",
		"transaction_id", transaction.ID,
		"source_account_id", transaction.SourceAccountID,
		"target_account_id", transaction.TargetAccountID,
		"amount", transaction.Amount)

	// The transfer is committed at this point; a lost notification is not a failed transfer.
	if err := s.publisher.PublishTransferCompleted(ctx, transaction); err != nil {
		s.logger.Error("Failed to publish transfer event", "transaction_id", transaction.ID, "error", err)
	}

	return transaction, nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	id, err := uuid.Parse(transactionID)
	if err != nil {
		return nil, errors.NewAppError(errors.InvalidInput, "invalid transaction id format").WithDetails(err.Error())
	}

	return s.store.Transaction().GetTransactionByID(ctx, id)
}

func (s *TransactionService) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	return s.store.Transaction().ListTransactions(ctx)
}
