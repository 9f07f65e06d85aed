package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"slices"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
)

const accountColumns = `id, balance, currency, created_at, updated_at`

type accountRepository struct {
	db          SQLExecutor
	lockTimeout time.Duration
	logger      *slog.Logger
}

// NewAccountRepository returns a repository over db. lockTimeout bounds the
// whole of a LockAccounts call; zero leaves it to the caller's context.
func NewAccountRepository(db SQLExecutor, lockTimeout time.Duration, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:          db,
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, balance, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := domain.Now()
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Balance.String(),
		account.Currency.String(),
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Warn("Duplicate account creation attempt", "account_id", account.ID)
			return errors.ErrDuplicateAccount
		}
		r.logger.Error("Failed to create account", "account_id", account.ID, "error", err)
		return classify(err, "failed to create account")
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created successfully", "account_id", account.ID)
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := r.scanAccount(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		r.logger.Warn("Account not found", "account_id", id)
		return nil, errors.ErrAccountNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get account", "account_id", id, "error", err)
		return nil, classify(err, "failed to get account")
	}
	return account, nil
}

// LockAccounts takes the row locks of every id in one statement, in ascending
// id order, so two transfers over the same pair always queue on the same row
// first. All the waits share a single deadline of lockTimeout.
func (r *accountRepository) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	if r.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.lockTimeout)
		defer cancel()
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ordered))
	if err != nil {
		r.logger.Warn("Failed to lock accounts", "account_ids", ordered, "error", err)
		return nil, classify(err, "failed to lock accounts")
	}
	defer rows.Close()

	accounts := make(map[int64]*domain.Account, len(ordered))
	for rows.Next() {
		account, err := r.scanAccount(rows)
		if err != nil {
			return nil, classify(err, "failed to lock accounts")
		}
		accounts[account.ID] = account
	}
	if err := rows.Err(); err != nil {
		r.logger.Warn("Failed to lock accounts", "account_ids", ordered, "error", err)
		return nil, classify(err, "failed to lock accounts")
	}
	return accounts, nil
}

func (r *accountRepository) scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	var balanceStr, currency string

	err := row.Scan(
		&account.ID,
		&balanceStr,
		&currency,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		r.logger.Error("Failed to parse balance", "account_id", account.ID, "balance_str", balanceStr, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
	}

	account.Balance = balance
	account.Currency = domain.Currency(currency)
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return &account, nil
}

func (r *accountRepository) SaveAccount(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = $2
		WHERE id = $3
	`

	now := domain.Now()
	result, err := r.db.ExecContext(ctx, query, account.Balance.String(), now, account.ID)
	if err != nil {
		r.logger.Error("Failed to update account balance", "account_id", account.ID, "error", err)
		return classify(err, "failed to update account balance")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		r.logger.Warn("No account found to update", "account_id", account.ID)
		return errors.ErrAccountNotFound
	}

	account.UpdatedAt = now
	r.logger.Info("Account balance updated", "account_id", account.ID, "new_balance", account.Balance)
	return nil
}
