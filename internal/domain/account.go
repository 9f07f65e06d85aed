package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID        int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  Currency        `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Clone returns a snapshot that can be mutated without affecting the original.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id int64) (*Account, error)
	// LockAccounts reads the given accounts and holds an exclusive lock on each of
	// them until the enclosing unit of work ends. Locks are taken in ascending id
	// order whatever order the ids are passed in. Missing accounts are absent from
	// the returned map rather than reported as an error.
	LockAccounts(ctx context.Context, ids ...int64) (map[int64]*Account, error)
	// SaveAccount replaces the stored balance of an existing account.
	SaveAccount(ctx context.Context, account *Account) error
}
