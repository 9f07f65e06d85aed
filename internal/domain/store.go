package domain

import (
	"context"
	"time"
)

// Store is the unit-of-work boundary over accounts and the ledger.
type Store interface {
	Account() AccountRepository
	Transaction() TransactionRepository
	// WithTransaction runs fn against a Store whose writes become visible together
	// when fn returns nil and are discarded otherwise. Locks taken through
	// LockAccounts are released when it returns. Calling it on a Store that is
	// already inside a unit of work joins the outer one.
	WithTransaction(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
}

// Now returns the current UTC time at the microsecond precision the database keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
