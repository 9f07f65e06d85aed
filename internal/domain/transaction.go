package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is the write-once ledger entry of a committed transfer.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	SourceAccountID int64           `json:"source_account_id"`
	TargetAccountID int64           `json:"target_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        Currency        `json:"currency"`
	TransactionDate time.Time       `json:"transaction_date"`
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Stamp assigns an id and a transaction date when they are not set yet.
func (t *Transaction) Stamp(now time.Time) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.TransactionDate.IsZero() {
		t.TransactionDate = now
	}
}

type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransactionByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// ListTransactions returns a snapshot of the ledger in commit order.
	ListTransactions(ctx context.Context) ([]*Transaction, error)
}
