// Package ledger defines the client's contract with the ledger node: the
// four transport primitives the core depends on, the program's operation
// set and its wire encoding, and the classification of node and program
// failures into the SDK error taxonomy.
package ledger

import (
	"context"
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
)

// ChainTip is a recent chain reference a transaction is anchored to.
// A tip is only usable within its validity window; stale tips must be
// refreshed, never reused.
type ChainTip struct {
	Hash   [32]byte
	Height uint64
	// ValidUntil bounds how long transactions built on this tip are
	// accepted by the node.
	ValidUntil time.Time
}

// Valid reports whether the tip may still anchor a new transaction.
func (t ChainTip) Valid(now time.Time) bool {
	return now.Before(t.ValidUntil)
}

// AccountInfo is the raw on-ledger view of one account.
type AccountInfo struct {
	Address contracts.Address
	// Data is the program-defined account payload; empty for plain
	// balance-holding accounts.
	Data []byte
	// Balance is the native balance in base units.
	Balance uint64
}

// ConfirmationState reports where a submitted transaction stands.
type ConfirmationState string

const (
	// ConfirmationPending means the node has not finalized the
	// transaction yet; it may still land or be dropped.
	ConfirmationPending ConfirmationState = "PENDING"
	// ConfirmationFinalized means the transaction landed and is final.
	ConfirmationFinalized ConfirmationState = "FINALIZED"
	// ConfirmationFailed means the node definitively rejected it.
	ConfirmationFailed ConfirmationState = "FAILED"
	// ConfirmationUnknown means the node has no record of the signature.
	ConfirmationUnknown ConfirmationState = "UNKNOWN"
)

// Confirmation is the result of a confirm-by-signature poll.
type Confirmation struct {
	State ConfirmationState
	// Err carries the definitive failure when State is FAILED.
	Err error
	// Height is the chain height at finalization.
	Height uint64
}

// Transport is the ledger node contract. Implementations must be safe
// for concurrent use; every call is a remote round-trip and honors ctx.
type Transport interface {
	// SubmitTransaction sends a signed transaction exactly once and
	// returns its ledger identifier. An error return does NOT imply the
	// transaction did not land; callers must reconcile ambiguous
	// failures before retrying.
	SubmitTransaction(ctx context.Context, tx *SignedTx) (contracts.TxID, error)

	// FetchAccount reads the current state of one account.
	FetchAccount(ctx context.Context, addr contracts.Address) (*AccountInfo, error)

	// FetchChainTip returns a fresh tip to anchor a transaction to.
	FetchChainTip(ctx context.Context) (ChainTip, error)

	// ConfirmSignature reports the confirmation state of a submitted
	// transaction.
	ConfirmSignature(ctx context.Context, id contracts.TxID) (Confirmation, error)
}

// AccountEvent is one advisory account-change notification.
type AccountEvent struct {
	Address contracts.Address
	// Height at which the change was observed.
	Height uint64
}

// Subscriber is the optional best-effort streaming surface. Events may be
// dropped or duplicated; consumers must treat them as a hint to re-read
// state, never as authoritative.
type Subscriber interface {
	// Subscribe registers interest in an account. The returned cancel
	// function releases the subscription.
	Subscribe(ctx context.Context, addr contracts.Address) (<-chan AccountEvent, func(), error)
}
