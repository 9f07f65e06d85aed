// Package cache puts a read-through account cache in front of a domain.Store.
//
// Invalidation is owned by the Store decorator: every account write that goes
// through it drops the cached entry, so no caller can forget to. A fill races
// with invalidation through epochs: Epoch is read before the store lookup, and
// Put only installs the snapshot if no invalidation bumped the epoch meanwhile.
package cache

import (
	"context"
	"sync"

	"fund-transfers/internal/domain"
)

type AccountCache interface {
	// Get returns nil and no error on a miss.
	Get(ctx context.Context, id int64) (*domain.Account, error)
	Epoch(ctx context.Context, id int64) (uint64, error)
	// Put stores account unless the entry was invalidated after epoch was read.
	Put(ctx context.Context, account *domain.Account, epoch uint64) error
	Invalidate(ctx context.Context, ids ...int64) error
}

// MemoryCache is a process-local AccountCache. Entries stay until invalidated;
// the account set is bounded by what the store holds.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[int64]*domain.Account
	epochs  map[int64]uint64
}

var _ AccountCache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[int64]*domain.Account),
		epochs:  make(map[int64]uint64),
	}
}

func (c *MemoryCache) Get(ctx context.Context, id int64) (*domain.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[id].Clone(), nil
}

func (c *MemoryCache) Epoch(ctx context.Context, id int64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochs[id], nil
}

func (c *MemoryCache) Put(ctx context.Context, account *domain.Account, epoch uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epochs[account.ID] != epoch {
		return nil
	}
	c.entries[account.ID] = account.Clone()
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, ids ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
		c.epochs[id]++
	}
	return nil
}

// Len reports the number of cached accounts.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
