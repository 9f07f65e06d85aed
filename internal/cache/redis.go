package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fund-transfers/internal/domain"
)

// putScript writes the account only while the epoch key still holds the value
// the reader saw before going to the store.
var putScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if not current then
  current = "0"
end
if current ~= ARGV[1] then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// RedisCache shares account snapshots between processes. Entries expire after
// ttl, which bounds staleness if an invalidation is ever lost.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ AccountCache = (*RedisCache)(nil)

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "fund-transfers"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) accountKey(id int64) string {
	return fmt.Sprintf("%s:account:%d", c.prefix, id)
}

func (c *RedisCache) epochKey(id int64) string {
	return fmt.Sprintf("%s:account:%d:epoch", c.prefix, id)
}

func (c *RedisCache) Get(ctx context.Context, id int64) (*domain.Account, error) {
	raw, err := c.client.Get(ctx, c.accountKey(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var account domain.Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("decode cached account %d: %w", id, err)
	}
	return &account, nil
}

func (c *RedisCache) Epoch(ctx context.Context, id int64) (uint64, error) {
	raw, err := c.client.Get(ctx, c.epochKey(id)).Result()
	if stderrors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (c *RedisCache) Put(ctx context.Context, account *domain.Account, epoch uint64) error {
	body, err := json.Marshal(account)
	if err != nil {
		return err
	}
	keys := []string{c.accountKey(account.ID), c.epochKey(account.ID)}
	return putScript.Run(ctx, c.client, keys, strconv.FormatUint(epoch, 10), body, c.ttl.Milliseconds()).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, c.accountKey(id))
			pipe.Incr(ctx, c.epochKey(id))
		}
		return nil
	})
	return err
}
