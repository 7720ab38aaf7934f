// Package guardtest provides the shared policy test vectors that keep the
// client-side evaluator and the ledger-side program copy in lockstep.
// Both implementations must produce the listed outcome for every vector.
package guardtest

import (
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

// Vector is one policy evaluation case.
type Vector struct {
	Name string

	Paused      bool
	DailyLimit  uint64
	SpentToday  uint64
	SinceReset  time.Duration
	Whitelisted bool
	Balance     uint64
	Amount      uint64

	WantAllowed bool
	WantReason  contracts.BlockReason
}

// Base is the reference time all vectors evaluate at.
var Base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Destination is the proposed destination for all vectors.
var Destination = func() contracts.Address {
	var a contracts.Address
	a[0] = 0xD0
	a[31] = 0x0D
	return a
}()

// Vectors is the shared corpus.
var Vectors = []Vector{
	{
		Name:       "allow within limit",
		DailyLimit: 1_000_000_000, SpentToday: 0, Whitelisted: true,
		Balance: 2_000_000_000, Amount: 300_000_000,
		WantAllowed: true,
	},
	{
		Name:       "allow exactly remaining",
		DailyLimit: 1_000_000_000, SpentToday: 700_000_000, Whitelisted: true,
		Balance: 2_000_000_000, Amount: 300_000_000,
		WantAllowed: true,
	},
	{
		Name:   "paused wins over everything",
		Paused: true,
		// Everything else would also fail; paused must be reported.
		DailyLimit: 0, SpentToday: 0, Whitelisted: false,
		Balance: 0, Amount: 1,
		WantReason: contracts.BlockVaultPaused,
	},
	{
		Name:       "whitelist checked before daily limit",
		DailyLimit: 100, SpentToday: 0, Whitelisted: false,
		Balance: 1_000, Amount: 500, // also over limit, but reason must be whitelist
		WantReason: contracts.BlockNotWhitelisted,
	},
	{
		Name:       "daily limit exceeded",
		DailyLimit: 1_000_000_000, SpentToday: 300_000_000, Whitelisted: true,
		Balance: 10_000_000_000, Amount: 800_000_000,
		WantReason: contracts.BlockDailyLimitExceeded,
	},
	{
		Name:       "limit lowered below spend treated as over limit",
		DailyLimit: 100, SpentToday: 250, Whitelisted: true,
		Balance: 1_000, Amount: 1,
		WantReason: contracts.BlockDailyLimitExceeded,
	},
	{
		Name:       "daily limit checked before balance",
		DailyLimit: 100, SpentToday: 100, Whitelisted: true,
		Balance: 0, Amount: 50,
		WantReason: contracts.BlockDailyLimitExceeded,
	},
	{
		Name:       "insufficient funds",
		DailyLimit: 1_000, SpentToday: 0, Whitelisted: true,
		Balance: 100, Amount: 500,
		WantReason: contracts.BlockInsufficientFunds,
	},
	{
		Name:       "rollover frees the limit",
		DailyLimit: 1_000, SpentToday: 1_000, SinceReset: 25 * time.Hour, Whitelisted: true,
		Balance: 10_000, Amount: 900,
		WantAllowed: true,
	},
	{
		Name:       "no rollover inside the window",
		DailyLimit: 1_000, SpentToday: 1_000, SinceReset: 23 * time.Hour, Whitelisted: true,
		Balance: 10_000, Amount: 900,
		WantReason: contracts.BlockDailyLimitExceeded,
	},
}

// State builds the vault state snapshot for a vector.
func (v Vector) State() *vault.State {
	s := &vault.State{
		Paused:      v.Paused,
		DailyLimit:  v.DailyLimit,
		SpentToday:  v.SpentToday,
		LastResetAt: Base.Add(-v.SinceReset),
	}
	if v.Whitelisted {
		_ = s.AddWhitelisted(Destination)
	}
	return s
}
