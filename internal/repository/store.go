package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
)

// SQLSTATEs that mean the statement lost a race for a row rather than failed.
const (
	sqlStateLockNotAvailable     = "55P03"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateSerializationFailure = "40001"
	sqlStateQueryCanceled        = "57014"
	sqlStateUniqueViolation      = "23505"
)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	db          DB
	executor    SQLExecutor
	inTx        bool
	lockTimeout time.Duration
	logger      *slog.Logger
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a new Store instance. lockTimeout is applied to every unit of
// work as the Postgres lock_timeout and caps the total wait of a LockAccounts
// call; zero leaves the server setting alone.
func NewStore(db DB, lockTimeout time.Duration, logger *slog.Logger) *Store {
	return &Store{
		db:          db,
		executor:    db,
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// Account returns an AccountRepository using the current executor
func (s *Store) Account() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.lockTimeout, s.logger)
}

// Transaction returns a TransactionRepository using the current executor
func (s *Store) Transaction() domain.TransactionRepository {
	return NewTransactionRepository(s.executor, s.logger)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err, "database unreachable")
	}
	return nil
}

// WithTransaction executes a function within a database transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("Failed to begin transaction", "error", err)
		return classify(err, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if s.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			_ = tx.Rollback()
			s.logger.Error("Failed to set lock timeout", "error", err)
			return classify(err, "failed to set lock timeout")
		}
	}

	txStore := &Store{
		db:          s.db,
		executor:    tx,
		inTx:        true,
		lockTimeout: s.lockTimeout,
		logger:      s.logger,
	}

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, context.Canceled) {
			s.logger.Warn("Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return classify(err, "failed to commit transaction")
	}
	return nil
}

// classify maps a database error to the error the engine reports. Lock waits
// that ran out and aborted deadlock or serialization victims become Busy;
// anything else is an internal error.
func classify(err error, message string) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case sqlStateLockNotAvailable, sqlStateDeadlockDetected,
			sqlStateSerializationFailure, sqlStateQueryCanceled:
			return errors.ErrBusy.WithDetails(pqErr.Message)
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.ErrBusy.WithDetails(err.Error())
	}

	return errors.NewAppError(errors.InternalError, message).WithDetails(err.Error())
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && string(pqErr.Code) == sqlStateUniqueViolation
}
