// Package cache keeps a Redis copy of account balances for read-heavy
// clients. The ledger stays authoritative.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"reflection-token-lab/internal/domain"
)

// BalanceCache stores balance:<addr> and reflection:<addr> as decimal strings.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache connects to Redis. ttl of zero keeps keys forever.
func NewBalanceCache(addr, password string, db int, ttl time.Duration) *BalanceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &BalanceCache{client: client, ttl: ttl}
}

// Ping checks the connection.
func (c *BalanceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *BalanceCache) Close() error {
	return c.client.Close()
}

func balanceKey(addr domain.Address) string    { return "balance:" + addr.String() }
func reflectionKey(addr domain.Address) string { return "reflection:" + addr.String() }

// Put writes both balances of the given holders in one pipeline.
func (c *BalanceCache) Put(ctx context.Context, holders ...domain.Holder) error {
	if len(holders) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	for _, h := range holders {
		pipe.Set(ctx, balanceKey(h.Address), domain.ZeroIfNil(h.Balance).Dec(), c.ttl)
		pipe.Set(ctx, reflectionKey(h.Address), domain.ZeroIfNil(h.Reflection).Dec(), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Get returns the cached holder. ok is false when either key is missing.
func (c *BalanceCache) Get(ctx context.Context, addr domain.Address) (domain.Holder, bool, error) {
	vals, err := c.client.MGet(ctx, balanceKey(addr), reflectionKey(addr)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Holder{}, false, nil
		}
		return domain.Holder{}, false, fmt.Errorf("cache get: %w", err)
	}

	h := domain.Holder{Address: addr}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return domain.Holder{}, false, nil
		}
		n, err := uint256.FromDecimal(s)
		if err != nil {
			return domain.Holder{}, false, fmt.Errorf("cache decode %s: %w", addr, err)
		}
		if i == 0 {
			h.Balance = n
		} else {
			h.Reflection = n
		}
	}
	return h, true, nil
}

// Invalidate removes the cached entries of addrs.
func (c *BalanceCache) Invalidate(ctx context.Context, addrs ...domain.Address) error {
	if len(addrs) == 0 {
		return nil
	}
	keys := make([]string, 0, 2*len(addrs))
	for _, a := range addrs {
		keys = append(keys, balanceKey(a), reflectionKey(a))
	}
	return c.client.Del(ctx, keys...).Err()
}
