package contracts

// BlockReason identifies which policy check rejected a transfer.
// The client-side evaluator and the ledger program share this taxonomy;
// the evaluation order is fixed and the first failing check wins.
type BlockReason string

const (
	BlockVaultPaused        BlockReason = "VAULT_PAUSED"
	BlockNotWhitelisted     BlockReason = "NOT_WHITELISTED"
	BlockDailyLimitExceeded BlockReason = "DAILY_LIMIT_EXCEEDED"
	BlockInsufficientFunds  BlockReason = "INSUFFICIENT_FUNDS"
)

// Escalatable reports whether a block with this reason may be escalated
// into an override request. A paused vault admits no transfers at all,
// so VAULT_PAUSED never escalates.
func (r BlockReason) Escalatable() bool {
	switch r {
	case BlockNotWhitelisted, BlockDailyLimitExceeded, BlockInsufficientFunds:
		return true
	}
	return false
}

// SignerRole distinguishes who signed a guarded transfer. The guard
// checks are identical for both roles; the role only selects which
// identity must match the vault's authority or agent signer.
type SignerRole string

const (
	RoleOwner SignerRole = "OWNER"
	RoleAgent SignerRole = "AGENT"
)

// OverrideStatus is the lifecycle state of a pending override.
// EXPIRED is derived lazily from the expiry deadline, never stored.
type OverrideStatus string

const (
	OverrideRequested       OverrideStatus = "REQUESTED"
	OverridePendingApproval OverrideStatus = "PENDING_APPROVAL"
	OverrideApproved        OverrideStatus = "APPROVED"
	OverrideExecuted        OverrideStatus = "EXECUTED"
	OverrideExpired         OverrideStatus = "EXPIRED"
	OverrideCancelled       OverrideStatus = "CANCELLED"
)

// Terminal reports whether no further transition may leave this status.
func (s OverrideStatus) Terminal() bool {
	switch s {
	case OverrideExecuted, OverrideCancelled:
		return true
	}
	return false
}
