// Package memstore is an in-process implementation of domain.Store.
//
// Committed state lives behind a single RWMutex. A unit of work stages its
// writes privately and applies them in one critical section on commit, so
// readers see either all of a transfer or none of it. Exclusive account locks
// are one-slot channels, which lets a waiter give up when its context ends.
package memstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
)

type state struct {
	mu           sync.RWMutex
	accounts     map[int64]*domain.Account
	transactions []*domain.Transaction
	index        map[uuid.UUID]int

	locks       *lockTable
	lockTimeout time.Duration
	logger      *slog.Logger
}

// unitOfWork holds what a transaction has locked and written but not yet committed.
type unitOfWork struct {
	held         map[int64]bool
	order        []int64
	accounts     map[int64]*domain.Account
	transactions []*domain.Transaction
}

type Store struct {
	state *state
	uow   *unitOfWork
}

var _ domain.Store = (*Store)(nil)

// New creates an empty store. lockTimeout bounds how long a unit of work waits for
// the account locks it asks for; zero means wait until the context ends.
func New(lockTimeout time.Duration, logger *slog.Logger) *Store {
	return &Store{
		state: &state{
			accounts:    make(map[int64]*domain.Account),
			index:       make(map[uuid.UUID]int),
			locks:       newLockTable(),
			lockTimeout: lockTimeout,
			logger:      logger,
		},
	}
}

func (s *Store) Account() domain.AccountRepository {
	return &accountRepository{store: s}
}

func (s *Store) Transaction() domain.TransactionRepository {
	return &transactionRepository{store: s}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	if s.uow != nil {
		return fn(s)
	}

	uow := &unitOfWork{
		held:     make(map[int64]bool),
		accounts: make(map[int64]*domain.Account),
	}
	txStore := &Store{state: s.state, uow: uow}
	defer s.release(uow)

	if err := fn(txStore); err != nil {
		return err
	}

	s.commit(uow)
	return nil
}

func (s *Store) commit(uow *unitOfWork) {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()

	for id, account := range uow.accounts {
		st.accounts[id] = account
	}
	for _, tx := range uow.transactions {
		st.index[tx.ID] = len(st.transactions)
		st.transactions = append(st.transactions, tx)
	}
}

func (s *Store) release(uow *unitOfWork) {
	for i := len(uow.order) - 1; i >= 0; i-- {
		s.state.locks.release(uow.order[i])
	}
}

// lock acquires the exclusive locks for ids in ascending order, skipping those the
// unit of work already holds. The whole acquisition shares one lock timeout.
func (s *Store) lock(ctx context.Context, ids []int64) error {
	if s.state.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.state.lockTimeout)
		defer cancel()
	}

	for _, id := range sortedUnique(ids) {
		if s.uow.held[id] {
			continue
		}
		if err := s.state.locks.acquire(ctx, id); err != nil {
			s.state.logger.Warn("Account lock wait exceeded", "account_id", id, "error", err)
			return errors.ErrBusy.WithDetails(err.Error())
		}
		s.uow.held[id] = true
		s.uow.order = append(s.uow.order, id)
	}
	return nil
}

// account returns the account as this store sees it: staged first, then committed.
func (s *Store) account(id int64) (*domain.Account, bool) {
	if s.uow != nil {
		if a, ok := s.uow.accounts[id]; ok {
			return a.Clone(), true
		}
	}

	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	a, ok := s.state.accounts[id]
	return a.Clone(), ok
}

func sortedUnique(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type lockTable struct {
	mu    sync.Mutex
	slots map[int64]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[int64]chan struct{})}
}

func (t *lockTable) slot(id int64) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		t.slots[id] = ch
	}
	return ch
}

func (t *lockTable) acquire(ctx context.Context, id int64) error {
	select {
	case t.slot(id) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *lockTable) release(id int64) {
	<-t.slot(id)
}
