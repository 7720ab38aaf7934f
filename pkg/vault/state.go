// Package vault holds the read-side model of on-ledger vault
// configuration: spending limits, spend counters, the destination
// whitelist, pause flag and nonces. The ledger program owns the
// authoritative copy; this model mirrors it for client-side evaluation.
package vault

import (
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
)

const (
	// WhitelistCapacity is the fixed maximum number of approved destinations.
	WhitelistCapacity = 20
	// NameCapacity is the fixed byte capacity of the vault display name.
	NameCapacity = 50
	// ResetWindow defines a spending "day": spentToday resets once the
	// window has fully elapsed since lastResetAt.
	ResetWindow = 24 * time.Hour
)

// State mirrors the on-ledger vault account.
type State struct {
	Authority   contracts.Address
	AgentSigner contracts.Address

	DailyLimit uint64
	SpentToday uint64
	// LastResetAt anchors the current spending day.
	LastResetAt time.Time

	Whitelist      [WhitelistCapacity]contracts.Address
	WhitelistCount uint8

	Tier           uint8
	FeeBasisPoints uint16

	Name   string
	Paused bool

	// OverrideNonce is consumed and incremented by every override request.
	OverrideNonce uint64
	// VaultNonce is immutable, chosen at creation; it scopes the vault's
	// derived address under its authority.
	VaultNonce uint64

	Bump uint8
}

// RolloverDue reports whether a new spending day has started.
func (s *State) RolloverDue(now time.Time) bool {
	return now.Sub(s.LastResetAt) >= ResetWindow
}

// ApplyRollover resets the daily spend counter if the reset window has
// elapsed. Idempotent within a day window: calling it twice (or any
// number of times) before the next window never resets twice, because
// the anchor moves forward on the first reset.
func (s *State) ApplyRollover(now time.Time) bool {
	if !s.RolloverDue(now) {
		return false
	}
	s.SpentToday = 0
	s.LastResetAt = now
	return true
}

// Remaining returns the spendable amount left in the current day.
// A policy update may lower DailyLimit below SpentToday; that state is
// simply "nothing remaining", never an underflow.
func (s *State) Remaining() uint64 {
	if s.SpentToday >= s.DailyLimit {
		return 0
	}
	return s.DailyLimit - s.SpentToday
}

// IsWhitelisted reports whether dest is an approved destination.
func (s *State) IsWhitelisted(dest contracts.Address) bool {
	for i := uint8(0); i < s.WhitelistCount; i++ {
		if s.Whitelist[i] == dest {
			return true
		}
	}
	return false
}

// AddWhitelisted appends dest, preserving order. No-op if already present.
func (s *State) AddWhitelisted(dest contracts.Address) error {
	if dest.IsZero() {
		return errs.Validation("whitelist destination must not be the zero address")
	}
	if s.IsWhitelisted(dest) {
		return nil
	}
	if int(s.WhitelistCount) >= WhitelistCapacity {
		return errs.Validation("whitelist full (%d entries)", WhitelistCapacity)
	}
	s.Whitelist[s.WhitelistCount] = dest
	s.WhitelistCount++
	return nil
}

// RemoveWhitelisted removes dest, shifting later entries down to keep the
// set ordered and dense. Errors if dest is not present.
func (s *State) RemoveWhitelisted(dest contracts.Address) error {
	for i := uint8(0); i < s.WhitelistCount; i++ {
		if s.Whitelist[i] != dest {
			continue
		}
		copy(s.Whitelist[i:s.WhitelistCount-1], s.Whitelist[i+1:s.WhitelistCount])
		s.WhitelistCount--
		s.Whitelist[s.WhitelistCount] = contracts.ZeroAddress
		return nil
	}
	return errs.Validation("destination %s is not whitelisted", dest.Short())
}

// RecordSpend adds amount to the daily counter after a successful transfer.
func (s *State) RecordSpend(amount uint64) {
	s.SpentToday += amount
}

// ValidateName rejects names the account layout cannot hold.
func ValidateName(name string) error {
	if len(name) > NameCapacity {
		return errs.Validation("vault name exceeds %d bytes", NameCapacity)
	}
	for _, c := range []byte(name) {
		if c < 0x20 || c > 0x7e {
			return errs.Validation("vault name must be printable ASCII")
		}
	}
	return nil
}
