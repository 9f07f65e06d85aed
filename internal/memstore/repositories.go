package memstore

import (
	"context"

	"github.com/google/uuid"

	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
)

type accountRepository struct {
	store *Store
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	if r.store.uow == nil {
		return r.store.WithTransaction(ctx, func(tx domain.Store) error {
			return tx.Account().CreateAccount(ctx, account)
		})
	}

	if err := r.store.lock(ctx, []int64{account.ID}); err != nil {
		return err
	}
	if _, exists := r.store.account(account.ID); exists {
		r.store.state.logger.Warn("Duplicate account creation attempt", "account_id", account.ID)
		return errors.ErrDuplicateAccount
	}

	now := domain.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.store.uow.accounts[account.ID] = account.Clone()

	r.store.state.logger.Info("Account created successfully", "account_id", account.ID)
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrBusy.WithDetails(err.Error())
	}
	a, ok := r.store.account(id)
	if !ok {
		r.store.state.logger.Warn("Account not found", "account_id", id)
		return nil, errors.ErrAccountNotFound
	}
	return a, nil
}

func (r *accountRepository) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	if r.store.uow != nil {
		if err := r.store.lock(ctx, ids); err != nil {
			return nil, err
		}
	}

	accounts := make(map[int64]*domain.Account, len(ids))
	for _, id := range ids {
		if a, ok := r.store.account(id); ok {
			accounts[id] = a
		}
	}
	return accounts, nil
}

func (r *accountRepository) SaveAccount(ctx context.Context, account *domain.Account) error {
	if r.store.uow == nil {
		return r.store.WithTransaction(ctx, func(tx domain.Store) error {
			return tx.Account().SaveAccount(ctx, account)
		})
	}

	if err := r.store.lock(ctx, []int64{account.ID}); err != nil {
		return err
	}
	current, ok := r.store.account(account.ID)
	if !ok {
		r.store.state.logger.Warn("No account found to update", "account_id", account.ID)
		return errors.ErrAccountNotFound
	}

	// Identity, currency and creation time are immutable; only the balance is replaced.
	current.Balance = account.Balance
	current.UpdatedAt = domain.Now()
	r.store.uow.accounts[account.ID] = current
	account.UpdatedAt = current.UpdatedAt

	r.store.state.logger.Info("Account balance updated", "account_id", account.ID, "new_balance", account.Balance)
	return nil
}

type transactionRepository struct {
	store *Store
}

func (r *transactionRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	tx.Stamp(domain.Now())

	if r.store.uow != nil {
		r.store.uow.transactions = append(r.store.uow.transactions, tx.Clone())
		r.store.state.logger.Info("Transaction created successfully", "transaction_id", tx.ID)
		return nil
	}

	st := r.store.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.index[tx.ID] = len(st.transactions)
	st.transactions = append(st.transactions, tx.Clone())
	st.logger.Info("Transaction created successfully", "transaction_id", tx.ID)
	return nil
}

func (r *transactionRepository) GetTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	if r.store.uow != nil {
		for _, tx := range r.store.uow.transactions {
			if tx.ID == id {
				return tx.Clone(), nil
			}
		}
	}

	st := r.store.state
	st.mu.RLock()
	defer st.mu.RUnlock()
	i, ok := st.index[id]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	return st.transactions[i].Clone(), nil
}

func (r *transactionRepository) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	st := r.store.state
	st.mu.RLock()
	out := make([]*domain.Transaction, 0, len(st.transactions))
	for _, tx := range st.transactions {
		out = append(out, tx.Clone())
	}
	st.mu.RUnlock()

	if r.store.uow != nil {
		for _, tx := range r.store.uow.transactions {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}
