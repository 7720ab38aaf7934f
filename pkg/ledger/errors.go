package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
)

// ProgramError is a definitive rejection code emitted by the on-ledger
// program. Codes are part of the program's ABI.
type ProgramError uint32

const (
	CodeVaultPaused ProgramError = 6000 + iota
	CodeNotWhitelisted
	CodeDailyLimitExceeded
	CodeInsufficientFunds
	CodeOverrideExpired
	CodeOverrideAlreadyExecuted
	CodeOverrideNotFound
	CodeOverrideNotApproved
	CodeOverrideCancelled
	CodeUnauthorizedSigner
	CodeVaultAlreadyExists
	CodeInvalidArgument
)

// ProgramFailure wraps a program rejection observed during confirmation.
// It is definitive: the transaction can never land.
type ProgramFailure struct {
	Code ProgramError
	// Transfer context when the failing operation carried one.
	Vault       contracts.Address
	Destination contracts.Address
	Amount      uint64
}

func (p *ProgramFailure) Error() string {
	return fmt.Sprintf("program error %d", uint32(p.Code))
}

// RPCError is a node-level failure with a transport error code.
type RPCError struct {
	Code int
	Msg  string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Msg)
}

// Node error codes with retry-relevant meaning.
const (
	RPCCodeRateLimited = 429
	RPCCodeNodeBehind  = -32005
	RPCCodeUnavailable = -32000
)

// AmbiguousError marks a submission whose outcome is unknown: the
// request failed after the transaction may have reached the node.
// Callers must reconcile (look the signature up) before any retry.
type AmbiguousError struct {
	TxID contracts.TxID
	Err  error
}

func (a *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous outcome for tx %s: %v", a.TxID, a.Err)
}

func (a *AmbiguousError) Unwrap() error { return a.Err }

// blockReasonByCode maps program rejections onto the client taxonomy.
var blockReasonByCode = map[ProgramError]contracts.BlockReason{
	CodeVaultPaused:        contracts.BlockVaultPaused,
	CodeNotWhitelisted:     contracts.BlockNotWhitelisted,
	CodeDailyLimitExceeded: contracts.BlockDailyLimitExceeded,
	CodeInsufficientFunds:  contracts.BlockInsufficientFunds,
}

var overrideCodeByProgram = map[ProgramError]string{
	CodeOverrideExpired:         errs.CodeOverrideExpired,
	CodeOverrideAlreadyExecuted: errs.CodeOverrideAlreadyExecuted,
	CodeOverrideNotFound:        errs.CodeOverrideNotFound,
	CodeOverrideNotApproved:     errs.CodeOverrideNotApproved,
	CodeOverrideCancelled:       errs.CodeOverrideCancelled,
}

// Classify maps an error from the transport into the SDK taxonomy so the
// retry and override logic can act on its Kind. It never loses the
// original error: everything not recognized wraps as transport.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var already *errs.Error
	if errors.As(err, &already) {
		return err
	}

	var pf *ProgramFailure
	if errors.As(err, &pf) {
		if reason, ok := blockReasonByCode[pf.Code]; ok {
			return errs.Policy(reason, pf.Vault, pf.Destination, pf.Amount)
		}
		if code, ok := overrideCodeByProgram[pf.Code]; ok {
			return errs.Override(code, pf.Vault, pf.Error())
		}
		switch pf.Code {
		case CodeUnauthorizedSigner, CodeVaultAlreadyExists, CodeInvalidArgument:
			return &errs.Error{Kind: errs.KindValidation, Code: fmt.Sprintf("PROGRAM_%d", pf.Code), Msg: pf.Error(), Err: err}
		}
		return errs.Internal(err, "unrecognized program error")
	}

	var amb *AmbiguousError
	if errors.As(err, &amb) {
		// Ambiguity is transport-kinded but must reconcile before retry;
		// the pipeline special-cases it via errors.As.
		return &errs.Error{Kind: errs.KindTransport, Code: "AMBIGUOUS", Msg: "submission outcome unknown", Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Timeout("deadline exceeded", "")
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return errs.Transport(err, rpcErr.Msg)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errs.Transport(err, "network failure")
	}

	return errs.Transport(err, "transport failure")
}

// IsAmbiguous reports whether err requires a reconciliation read before
// any retry.
func IsAmbiguous(err error) (contracts.TxID, bool) {
	var amb *AmbiguousError
	if errors.As(err, &amb) {
		return amb.TxID, true
	}
	return "", false
}
