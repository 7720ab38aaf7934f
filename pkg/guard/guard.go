// Package guard evaluates vault policy for a proposed transfer.
//
// The evaluator is a pure function over a vault state snapshot. It is
// advisory on the client: the ledger program re-runs an equivalent check
// atomically with the transfer and is the sole source of truth. The
// client copy exists to avoid wasted round-trips and to select the
// correct block reason for the override flow. Both copies share one
// reason taxonomy and are kept in lockstep via shared test vectors.
package guard

import (
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/canonical"
	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

// Proposal is a transfer awaiting evaluation.
type Proposal struct {
	Destination contracts.Address
	Amount      uint64
	// Balance is the spendable balance held for the vault.
	Balance uint64
	Now     time.Time
}

// Decision is the evaluation outcome.
type Decision struct {
	Allowed bool
	// Reason is set when blocked.
	Reason contracts.BlockReason
	// RolloverApplied reports that the evaluation treated the spend
	// counter as reset because a new day window had started.
	RolloverApplied bool
	// Remaining is the daily headroom after the rollover rule, before
	// this proposal.
	Remaining uint64
}

// Evaluate runs the policy checks in their fixed order; the first failing
// check wins and evaluation short-circuits:
//
//  1. paused
//  2. whitelist membership
//  3. daily limit (after the day-rollover rule)
//  4. available balance
//
// The state snapshot is never mutated; the rollover is applied virtually.
func Evaluate(s *vault.State, p Proposal) Decision {
	if s.Paused {
		return Decision{Reason: contracts.BlockVaultPaused}
	}

	if !s.IsWhitelisted(p.Destination) {
		return Decision{Reason: contracts.BlockNotWhitelisted}
	}

	spent := s.SpentToday
	rolled := false
	if s.RolloverDue(p.Now) {
		spent = 0
		rolled = true
	}
	var remaining uint64
	if spent < s.DailyLimit {
		remaining = s.DailyLimit - spent
	}
	if p.Amount > remaining {
		return Decision{Reason: contracts.BlockDailyLimitExceeded, RolloverApplied: rolled, Remaining: remaining}
	}

	if p.Amount > p.Balance {
		return Decision{Reason: contracts.BlockInsufficientFunds, RolloverApplied: rolled, Remaining: remaining}
	}

	return Decision{Allowed: true, RolloverApplied: rolled, Remaining: remaining}
}

// Receipt is an auditable record of one evaluation.
type Receipt struct {
	Vault       contracts.Address     `json:"vault"`
	Destination contracts.Address     `json:"destination"`
	Amount      uint64                `json:"amount"`
	Allowed     bool                  `json:"allowed"`
	Reason      contracts.BlockReason `json:"reason,omitempty"`
	EvaluatedAt time.Time             `json:"evaluated_at"`
	ContentHash string                `json:"content_hash,omitempty"`
}

// NewReceipt builds a content-addressed receipt for a decision.
func NewReceipt(vaultAddr contracts.Address, p Proposal, d Decision) (*Receipt, error) {
	r := &Receipt{
		Vault:       vaultAddr,
		Destination: p.Destination,
		Amount:      p.Amount,
		Allowed:     d.Allowed,
		Reason:      d.Reason,
		EvaluatedAt: p.Now.UTC(),
	}
	hash, err := canonical.Hash(struct {
		Vault       string                `json:"vault"`
		Destination string                `json:"destination"`
		Amount      uint64                `json:"amount"`
		Allowed     bool                  `json:"allowed"`
		Reason      contracts.BlockReason `json:"reason"`
		EvaluatedAt int64                 `json:"evaluated_at"`
	}{
		Vault:       r.Vault.String(),
		Destination: r.Destination.String(),
		Amount:      r.Amount,
		Allowed:     r.Allowed,
		Reason:      r.Reason,
		EvaluatedAt: r.EvaluatedAt.Unix(),
	})
	if err != nil {
		return nil, err
	}
	r.ContentHash = hash
	return r, nil
}
