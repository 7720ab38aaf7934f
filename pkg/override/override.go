// Package override implements the request/approve/execute lifecycle for a
// blocked transfer. A pending override is a time-boxed, owner-approved
// exception: creation alone never authorizes execution, approval is
// owner-signed, execution happens at most once, and expiry is derived
// lazily from the deadline whenever the override is read or acted upon.
package override

import (
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/amount"
	"github.com/vaultguard-labs/vaultguard-go/pkg/canonical"
	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

// DefaultExpiry is the execution window granted to a new override.
const DefaultExpiry = time.Hour

// Pending is one escalated blocked transfer. (Vault, Nonce) is the
// primary key; the nonce was consumed from the vault's overrideNonce at
// creation and is never reused.
type Pending struct {
	Vault       contracts.Address
	Nonce       uint64
	Destination contracts.Address
	Amount      uint64
	BlockReason contracts.BlockReason

	CreatedAt time.Time
	ExpiresAt time.Time

	// Registered is set once the Guardian collaborator has acknowledged
	// the request and can surface an approval link. Purely informational:
	// approval and execution do not depend on it.
	Registered bool

	Approved   bool
	ApprovedAt time.Time
	// Executed transitions false→true exactly once, never back.
	Executed   bool
	ExecutedAt time.Time
	Cancelled  bool
}

// Status derives the externally visible lifecycle state. EXPIRED is not
// stored; it is computed from the deadline at read time.
func (p *Pending) Status(now time.Time) contracts.OverrideStatus {
	switch {
	case p.Executed:
		return contracts.OverrideExecuted
	case p.Cancelled:
		return contracts.OverrideCancelled
	case now.After(p.ExpiresAt):
		return contracts.OverrideExpired
	case p.Approved:
		return contracts.OverrideApproved
	case p.Registered:
		return contracts.OverridePendingApproval
	default:
		return contracts.OverrideRequested
	}
}

// NewRequest validates and builds a pending override, consuming the
// vault's current override nonce (the caller increments the state; on
// ledger the program does both atomically).
func NewRequest(s *vault.State, vaultAddr, dest contracts.Address, amt uint64, reason contracts.BlockReason, now time.Time, expiry time.Duration) (*Pending, error) {
	if err := amount.ValidateTransfer(amt); err != nil {
		return nil, err
	}
	if dest.IsZero() {
		return nil, errs.Validation("override destination must not be the zero address")
	}
	if !reason.Escalatable() {
		return nil, errs.Validation("block reason %s cannot be escalated", reason)
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Pending{
		Vault:       vaultAddr,
		Nonce:       s.OverrideNonce,
		Destination: dest,
		Amount:      amt,
		BlockReason: reason,
		CreatedAt:   now,
		ExpiresAt:   now.Add(expiry),
	}, nil
}

// ApproveAt marks the override approved. Idempotent: approving an
// already-approved, unexpired override is a no-op, not an error.
// Approval past the deadline fails.
func (p *Pending) ApproveAt(now time.Time) error {
	switch p.Status(now) {
	case contracts.OverrideExecuted:
		return errs.Override(errs.CodeOverrideAlreadyExecuted, p.Vault, "override already executed")
	case contracts.OverrideCancelled:
		return errs.Override(errs.CodeOverrideCancelled, p.Vault, "override was cancelled")
	case contracts.OverrideExpired:
		return errs.Override(errs.CodeOverrideExpired, p.Vault, "override approval window elapsed")
	case contracts.OverrideApproved:
		return nil
	}
	p.Approved = true
	p.ApprovedAt = now
	return nil
}

// ExecuteAt applies the fund-transfer effect of an approved override.
// It bypasses the whitelist and daily-limit checks that originally
// blocked the transfer, but NOT the pause flag or the balance check.
// Returns the fee and net amounts moved.
func (p *Pending) ExecuteAt(s *vault.State, balance uint64, now time.Time) (fee, net uint64, err error) {
	switch p.Status(now) {
	case contracts.OverrideExecuted:
		return 0, 0, errs.Override(errs.CodeOverrideAlreadyExecuted, p.Vault, "override already executed")
	case contracts.OverrideCancelled:
		return 0, 0, errs.Override(errs.CodeOverrideCancelled, p.Vault, "override was cancelled")
	case contracts.OverrideExpired:
		return 0, 0, errs.Override(errs.CodeOverrideExpired, p.Vault, "override execution window elapsed")
	case contracts.OverrideRequested, contracts.OverridePendingApproval:
		return 0, 0, errs.Override(errs.CodeOverrideNotApproved, p.Vault, "override has not been approved")
	}

	if s.Paused {
		// Pause is never bypassed, even by an approved override.
		return 0, 0, errs.Policy(contracts.BlockVaultPaused, p.Vault, p.Destination, p.Amount)
	}
	if p.Amount > balance {
		return 0, 0, errs.Policy(contracts.BlockInsufficientFunds, p.Vault, p.Destination, p.Amount)
	}

	p.Executed = true
	p.ExecutedAt = now

	fee = amount.Fee(p.Amount, s.FeeBasisPoints)
	return fee, p.Amount - fee, nil
}

// CancelAt terminates a non-executed override. Owner action, terminal.
func (p *Pending) CancelAt(now time.Time) error {
	if p.Executed {
		return errs.Override(errs.CodeOverrideAlreadyExecuted, p.Vault, "override already executed")
	}
	p.Cancelled = true
	return nil
}

// Receipt is the content-addressed record of a lifecycle transition.
type Receipt struct {
	Vault       contracts.Address        `json:"vault"`
	Nonce       uint64                   `json:"nonce"`
	Outcome     contracts.OverrideStatus `json:"outcome"`
	ResolvedAt  time.Time                `json:"resolved_at"`
	ContentHash string                   `json:"content_hash"`
}

// NewReceipt hashes the transition for audit.
func NewReceipt(p *Pending, now time.Time) (*Receipt, error) {
	outcome := p.Status(now)
	hash, err := canonical.Hash(struct {
		Vault   string                   `json:"vault"`
		Nonce   uint64                   `json:"nonce"`
		Outcome contracts.OverrideStatus `json:"outcome"`
	}{Vault: p.Vault.String(), Nonce: p.Nonce, Outcome: outcome})
	if err != nil {
		return nil, err
	}
	return &Receipt{
		Vault:       p.Vault,
		Nonce:       p.Nonce,
		Outcome:     outcome,
		ResolvedAt:  now,
		ContentHash: hash,
	}, nil
}
