package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
)

const transactionColumns = `id, source_account_id, target_account_id, amount, currency, transaction_date`

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	tx.Stamp(domain.Now())
	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.SourceAccountID,
		tx.TargetAccountID,
		tx.Amount.String(),
		tx.Currency.String(),
		tx.TransactionDate,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction",
			"source_account_id", tx.SourceAccountID,
			"target_account_id", tx.TargetAccountID,
			"amount", tx.Amount,
			"error", err)
		return classify(err, "failed to create transaction")
	}

	r.logger.Info("Transaction created successfully", "transaction_id", tx.ID)
	return nil
}

func (r *transactionRepository) GetTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrTransactionNotFound
		}
		r.logger.Error("Failed to get transaction", "transaction_id", id, "error", err)
		return nil, classify(err, "failed to get transaction")
	}
	return tx, nil
}

func (r *transactionRepository) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	// seq is drawn at insert time, so this is insertion order.
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list transactions", "error", err)
		return nil, classify(err, "failed to list transactions")
	}
	defer rows.Close()

	transactions := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, classify(err, "failed to read transaction")
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to list transactions")
	}
	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amountStr, currency string

	if err := row.Scan(
		&tx.ID,
		&tx.SourceAccountID,
		&tx.TargetAccountID,
		&amountStr,
		&currency,
		&tx.TransactionDate,
	); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to parse amount").WithDetails(err.Error())
	}
	tx.Amount = amount
	tx.Currency = domain.Currency(currency)
	tx.TransactionDate = tx.TransactionDate.UTC()
	return &tx, nil
}
