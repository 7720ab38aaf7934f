// Package cache is a short-TTL read cache for vault account state. It
// only ever serves the advisory client-side policy check; the program
// re-reads authoritative state on-ledger, so a stale hit costs at most
// one wasted round-trip.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

// DefaultTTL bounds staleness of the advisory state.
const DefaultTTL = 5 * time.Second

// StateCache stores decoded vault states keyed by vault address.
type StateCache interface {
	// Get returns the cached state, or ok=false on miss or expiry.
	Get(ctx context.Context, addr contracts.Address) (*vault.State, bool)
	// Put stores a state snapshot under the cache TTL.
	Put(ctx context.Context, addr contracts.Address, s *vault.State) error
	// Invalidate drops the entry; called after any mutation the caller
	// itself performed.
	Invalidate(ctx context.Context, addr contracts.Address) error
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is the in-process StateCache.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   func() time.Time
	entries map[contracts.Address]memoryEntry
}

var _ StateCache = (*Memory)(nil)

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[contracts.Address]memoryEntry),
	}
}

// WithClock overrides the clock for deterministic tests.
func (m *Memory) WithClock(clock func() time.Time) *Memory {
	m.clock = clock
	return m
}

func (m *Memory) Get(_ context.Context, addr contracts.Address) (*vault.State, bool) {
	m.mu.RLock()
	e, ok := m.entries[addr]
	m.mu.RUnlock()
	if !ok || m.clock().After(e.expiresAt) {
		return nil, false
	}
	s, err := vault.Decode(e.data)
	if err != nil {
		return nil, false
	}
	return s, true
}

func (m *Memory) Put(_ context.Context, addr contracts.Address, s *vault.State) error {
	// The account codec doubles as the cache serialization, so a cached
	// state can never drift from what the ledger would return.
	data, err := vault.Encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[addr] = memoryEntry{data: data, expiresAt: m.clock().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, addr contracts.Address) error {
	m.mu.Lock()
	delete(m.entries, addr)
	m.mu.Unlock()
	return nil
}
