package cache

import (
	"context"
	"log/slog"

	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
)

// Store wraps a domain.Store with a read-through AccountCache.
type Store struct {
	inner  domain.Store
	cache  AccountCache
	logger *slog.Logger

	// dirty collects the ids written inside a unit of work; nil outside one.
	dirty *[]int64
}

var _ domain.Store = (*Store)(nil)

func NewStore(inner domain.Store, cache AccountCache, logger *slog.Logger) *Store {
	return &Store{inner: inner, cache: cache, logger: logger}
}

func (s *Store) Account() domain.AccountRepository {
	return &accountRepository{store: s, inner: s.inner.Account()}
}

func (s *Store) Transaction() domain.TransactionRepository {
	return s.inner.Transaction()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// WithTransaction invalidates every account written by fn twice: just before the
// inner commit, and again right after it, before returning. The first pass
// aborts the unit of work if the cache cannot be reached; the second closes the
// window in which a concurrent reader refilled the entry from pre-commit state.
func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	if s.dirty != nil {
		return fn(s)
	}

	var dirty []int64
	err := s.inner.WithTransaction(ctx, func(tx domain.Store) error {
		txStore := &Store{inner: tx, cache: s.cache, logger: s.logger, dirty: &dirty}
		if err := fn(txStore); err != nil {
			return err
		}
		if err := s.cache.Invalidate(ctx, dirty...); err != nil {
			s.logger.Error("Cache invalidation failed before commit", "account_ids", dirty, "error", err)
			return errors.NewAppError(errors.InternalError, "failed to invalidate account cache").WithDetails(err.Error())
		}
		return nil
	})

	if len(dirty) > 0 {
		s.invalidate(ctx, dirty...)
	}
	return err
}

func (s *Store) invalidate(ctx context.Context, ids ...int64) {
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		s.logger.Error("Cache invalidation failed", "account_ids", ids, "error", err)
	}
}

type accountRepository struct {
	store *Store
	inner domain.AccountRepository
}

func (r *accountRepository) written(ctx context.Context, id int64) {
	if r.store.dirty != nil {
		*r.store.dirty = append(*r.store.dirty, id)
		return
	}
	r.store.invalidate(ctx, id)
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	if err := r.inner.CreateAccount(ctx, account); err != nil {
		return err
	}
	r.written(ctx, account.ID)
	return nil
}

// GetAccount serves from the cache outside a unit of work. Inside one it always
// reads the store, which may hold writes the cache must not see yet.
func (r *accountRepository) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	if r.store.dirty != nil {
		return r.inner.GetAccount(ctx, id)
	}

	cached, err := r.store.cache.Get(ctx, id)
	if err != nil {
		r.store.logger.Warn("Cache read failed, falling back to store", "account_id", id, "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	epoch, epochErr := r.store.cache.Epoch(ctx, id)
	account, err := r.inner.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	if epochErr != nil {
		r.store.logger.Warn("Cache epoch read failed, not caching", "account_id", id, "error", epochErr)
		return account, nil
	}
	if err := r.store.cache.Put(ctx, account, epoch); err != nil {
		r.store.logger.Warn("Cache fill failed", "account_id", id, "error", err)
	}
	return account, nil
}

func (r *accountRepository) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	return r.inner.LockAccounts(ctx, ids...)
}

func (r *accountRepository) SaveAccount(ctx context.Context, account *domain.Account) error {
	if err := r.inner.SaveAccount(ctx, account); err != nil {
		return err
	}
	r.written(ctx, account.ID)
	return nil
}
