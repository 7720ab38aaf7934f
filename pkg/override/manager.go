package override

import (
	"sync"
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

// Key identifies a pending override.
type Key struct {
	Vault contracts.Address
	Nonce uint64
}

// Manager tracks pending overrides and serializes their transitions.
// The ledger program holds the authoritative registry; this in-process
// one backs the in-memory ledger and client-side bookkeeping.
type Manager struct {
	mu      sync.Mutex
	pending map[Key]*Pending
	clock   func() time.Time
	expiry  time.Duration
}

// NewManager creates an empty registry with the default expiry window.
func NewManager() *Manager {
	return &Manager{
		pending: make(map[Key]*Pending),
		clock:   time.Now,
		expiry:  DefaultExpiry,
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// WithExpiry overrides the execution window for new requests.
func (m *Manager) WithExpiry(d time.Duration) *Manager {
	m.expiry = d
	return m
}

// Request creates a pending override, consuming the vault state's current
// override nonce and incrementing it. Two concurrent requests can never
// reuse a nonce: the increment happens under the manager lock, mirroring
// the program's atomic increment on ledger.
func (m *Manager) Request(s *vault.State, vaultAddr, dest contracts.Address, amt uint64, reason contracts.BlockReason) (*Pending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := NewRequest(s, vaultAddr, dest, amt, reason, m.clock(), m.expiry)
	if err != nil {
		return nil, err
	}
	s.OverrideNonce++

	m.pending[Key{Vault: vaultAddr, Nonce: p.Nonce}] = p
	return p, nil
}

// Get returns the pending override for (vault, nonce).
func (m *Manager) Get(vaultAddr contracts.Address, nonce uint64) (*Pending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(vaultAddr, nonce)
}

func (m *Manager) get(vaultAddr contracts.Address, nonce uint64) (*Pending, error) {
	p, ok := m.pending[Key{Vault: vaultAddr, Nonce: nonce}]
	if !ok {
		return nil, errs.Override(errs.CodeOverrideNotFound, vaultAddr, "no pending override for nonce")
	}
	return p, nil
}

// MarkRegistered records a successful Guardian registration.
func (m *Manager) MarkRegistered(vaultAddr contracts.Address, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(vaultAddr, nonce)
	if err != nil {
		return err
	}
	p.Registered = true
	return nil
}

// Approve transitions the override to approved. Idempotent while the
// override is approved and unexpired.
func (m *Manager) Approve(vaultAddr contracts.Address, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(vaultAddr, nonce)
	if err != nil {
		return err
	}
	return p.ApproveAt(m.clock())
}

// Execute applies the transfer effect of an approved override against the
// vault state and balance. Spending does not count against the daily
// limit: the owner approved it outside the daily budget.
func (m *Manager) Execute(s *vault.State, vaultAddr contracts.Address, nonce uint64, balance uint64) (fee, net uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(vaultAddr, nonce)
	if err != nil {
		return 0, 0, err
	}
	return p.ExecuteAt(s, balance, m.clock())
}

// Cancel terminates a non-executed override.
func (m *Manager) Cancel(vaultAddr contracts.Address, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(vaultAddr, nonce)
	if err != nil {
		return err
	}
	return p.CancelAt(m.clock())
}

// PendingCount returns the number of overrides still awaiting approval.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	n := 0
	for _, p := range m.pending {
		switch p.Status(now) {
		case contracts.OverrideRequested, contracts.OverridePendingApproval:
			n++
		}
	}
	return n
}
