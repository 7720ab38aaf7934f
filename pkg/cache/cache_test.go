package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

func testState() *vault.State {
	return &vault.State{
		Authority:   contracts.MustAddress("0101010101010101010101010101010101010101010101010101010101010101"),
		AgentSigner: contracts.MustAddress("0202020202020202020202020202020202020202020202020202020202020202"),
		DailyLimit:  1_000_000_000,
		SpentToday:  250_000_000,
		LastResetAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Name:        "ops",
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory(5 * time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()
	addr := contracts.MustAddress("0303030303030303030303030303030303030303030303030303030303030303")

	_, ok := c.Get(ctx, addr)
	require.False(t, ok, "empty cache misses")

	s := testState()
	require.NoError(t, c.Put(ctx, addr, s))

	got, ok := c.Get(ctx, addr)
	require.True(t, ok)
	assert.Equal(t, s, got)

	// The cache holds an encoded snapshot, not the caller's pointer.
	s.SpentToday = 999
	got, ok = c.Get(ctx, addr)
	require.True(t, ok)
	assert.Equal(t, uint64(250_000_000), got.SpentToday)
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory(5 * time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()
	addr := contracts.MustAddress("0404040404040404040404040404040404040404040404040404040404040404")

	require.NoError(t, c.Put(ctx, addr, testState()))
	now = now.Add(6 * time.Second)

	_, ok := c.Get(ctx, addr)
	assert.False(t, ok, "entries expire after the TTL")
}

func TestMemoryCacheInvalidate(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()
	addr := contracts.MustAddress("0505050505050505050505050505050505050505050505050505050505050505")

	require.NoError(t, c.Put(ctx, addr, testState()))
	require.NoError(t, c.Invalidate(ctx, addr))

	_, ok := c.Get(ctx, addr)
	assert.False(t, ok)
}

// TestRedisCache_Integration requires a running Redis; skipped otherwise.
func TestRedisCache_Integration(t *testing.T) {
	c := NewRedis("localhost:6379", "", 0, time.Second)
	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	addr := contracts.MustAddress("0606060606060606060606060606060606060606060606060606060606060606")
	require.NoError(t, c.Put(ctx, addr, testState()))

	got, ok := c.Get(ctx, addr)
	require.True(t, ok)
	assert.Equal(t, uint64(1_000_000_000), got.DailyLimit)

	require.NoError(t, c.Invalidate(ctx, addr))
	_, ok = c.Get(ctx, addr)
	assert.False(t, ok)
}
