package address

import (
	"crypto/sha256"
	"sync"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
)

// Cache memoizes derived addresses. Derivation is pure, so entries are
// immutable once computed and safe to share across goroutines.
type Cache struct {
	mu      sync.RWMutex
	entries map[[32]byte]cached
}

type cached struct {
	addr contracts.Address
	bump uint8
}

// NewCache returns an empty derivation cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[[32]byte]cached)}
}

// Derive returns the cached derivation for (tag, seeds), computing and
// storing it on first use.
func (c *Cache) Derive(tag string, seeds ...[]byte) (contracts.Address, uint8, error) {
	key := cacheKey(tag, seeds)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e.addr, e.bump, nil
	}

	addr, bump, err := Derive(tag, seeds...)
	if err != nil {
		return contracts.ZeroAddress, 0, err
	}

	c.mu.Lock()
	c.entries[key] = cached{addr: addr, bump: bump}
	c.mu.Unlock()
	return addr, bump, nil
}

// Len returns the number of cached derivations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cacheKey(tag string, seeds [][]byte) [32]byte {
	h := sha256.New()
	writeChunk(h, []byte(tag))
	for _, s := range seeds {
		writeChunk(h, s)
	}
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}
