package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

// Redis is the shared StateCache for multi-process deployments: several
// agent workers reading the same vault hit one cache instead of one
// ledger node each.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ StateCache = (*Redis)(nil)

func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: rdb, ttl: ttl}
}

// NewRedisWithClient wraps an existing client, for sharing a pool.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func key(addr contracts.Address) string {
	return fmt.Sprintf("vaultstate:%s", addr)
}

func (r *Redis) Get(ctx context.Context, addr contracts.Address) (*vault.State, bool) {
	data, err := r.client.Get(ctx, key(addr)).Bytes()
	if err != nil {
		// Miss and transport failure look the same to the caller; the
		// cache is advisory, so both fall through to the ledger read.
		return nil, false
	}
	s, err := vault.Decode(data)
	if err != nil {
		return nil, false
	}
	return s, true
}

func (r *Redis) Put(ctx context.Context, addr contracts.Address, s *vault.State) error {
	data, err := vault.Encode(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key(addr), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, addr contracts.Address) error {
	if err := r.client.Del(ctx, key(addr)).Err(); err != nil {
		return fmt.Errorf("redis cache del: %w", err)
	}
	return nil
}

// Ping checks connectivity, used at startup to fail fast on bad config.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
