// Package store persists the submission journal: one durable record per
// transaction the pipeline sends, written before the submit round-trip.
// After a crash the journal is the only way to tell an in-flight
// transfer from one that never left the process, so reconciliation
// starts here.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
)

// SubmissionStatus is the journal's view of one submission.
type SubmissionStatus string

const (
	// StatusSubmitted is written before the wire call; a record stuck in
	// this state after a restart needs reconciliation.
	StatusSubmitted SubmissionStatus = "SUBMITTED"
	StatusConfirmed SubmissionStatus = "CONFIRMED"
	StatusFailed    SubmissionStatus = "FAILED"
	// StatusTimedOut means the confirmation window elapsed; the
	// transaction may still land.
	StatusTimedOut SubmissionStatus = "TIMED_OUT"
	// StatusAmbiguous means the submit itself failed after the
	// transaction may have reached the node.
	StatusAmbiguous SubmissionStatus = "AMBIGUOUS"
)

// unresolved statuses still need a confirmation or reconciliation read.
func (s SubmissionStatus) Resolved() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// SubmissionRecord is one journal entry.
type SubmissionRecord struct {
	// ID is the journal's own identifier, assigned at record time.
	ID string
	// TxID is the ledger identifier, known as soon as the transaction is
	// signed.
	TxID  contracts.TxID
	Vault contracts.Address
	// Op is the program operation name.
	Op          string
	Destination contracts.Address
	Amount      uint64
	// IntentHash is the canonical hash of the caller's intent, for
	// matching retries of the same logical transfer.
	IntentHash string

	Status      SubmissionStatus
	Attempts    int
	LastError   string
	SubmittedAt time.Time
	ResolvedAt  time.Time
}

// NewSubmissionRecord stamps a fresh record in StatusSubmitted.
func NewSubmissionRecord(txID contracts.TxID, vault contracts.Address, op string, now time.Time) *SubmissionRecord {
	return &SubmissionRecord{
		ID:          uuid.NewString(),
		TxID:        txID,
		Vault:       vault,
		Op:          op,
		Status:      StatusSubmitted,
		Attempts:    1,
		SubmittedAt: now,
	}
}

// Journal is the durable submission log.
type Journal interface {
	// Record writes a new entry. The entry's ID must be unused.
	Record(ctx context.Context, r *SubmissionRecord) error

	// Resolve moves an entry to its terminal or intermediate status.
	Resolve(ctx context.Context, id string, status SubmissionStatus, lastErr string, at time.Time) error

	// GetByTxID looks an entry up by its ledger identifier.
	GetByTxID(ctx context.Context, txID contracts.TxID) (*SubmissionRecord, error)

	// ListUnresolved returns entries that still need reconciliation,
	// oldest first.
	ListUnresolved(ctx context.Context) ([]*SubmissionRecord, error)

	// ListByVault returns the most recent entries for one vault.
	ListByVault(ctx context.Context, vault contracts.Address, limit int) ([]*SubmissionRecord, error)
}
