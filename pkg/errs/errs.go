// Package errs defines the error taxonomy for the vaultguard client.
//
// Every error surfaced by the SDK carries a machine-readable Kind plus
// enough context (vault, destination, amount) for the caller to act —
// in particular, to request an override without re-deriving state.
// Retry decisions are made exclusively from the Kind: only transport
// and timeout errors are ever retried.
package errs

import (
	"errors"
	"fmt"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
)

// Kind classifies an error for retry and escalation decisions.
type Kind string

const (
	// KindValidation is a caller error (bad address, amount, name). Never retried.
	KindValidation Kind = "VALIDATION"
	// KindPolicy is an expected policy rejection. Drives the override flow. Never retried.
	KindPolicy Kind = "POLICY_VIOLATION"
	// KindOverride is a terminal override-lifecycle failure. Never retried.
	KindOverride Kind = "OVERRIDE"
	// KindTransport is a transient network or RPC failure. Retryable.
	KindTransport Kind = "TRANSPORT"
	// KindTimeout means confirmation did not arrive in time. The operation
	// may still land later; retryable only after reconciliation.
	KindTimeout Kind = "TIMEOUT"
	// KindCollaborator is a Guardian notification failure. Non-fatal to the
	// on-ledger outcome; logged and surfaced but never rolled back.
	KindCollaborator Kind = "COLLABORATOR"
	// KindInternal is an unexpected invariant failure. Never retried.
	KindInternal Kind = "INTERNAL"
)

// Override error codes.
const (
	CodeOverrideExpired         = "OVERRIDE_EXPIRED"
	CodeOverrideAlreadyExecuted = "OVERRIDE_ALREADY_EXECUTED"
	CodeOverrideNotFound        = "OVERRIDE_NOT_FOUND"
	CodeOverrideNotApproved     = "OVERRIDE_NOT_APPROVED"
	CodeOverrideCancelled       = "OVERRIDE_CANCELLED"
)

// Error is the SDK error carrier.
type Error struct {
	Kind Kind
	// Code is a stable machine-readable identifier within the Kind,
	// e.g. a BlockReason string or an override error code.
	Code string
	Msg  string

	// Context for the caller. Zero values mean "not applicable".
	Vault       contracts.Address
	Destination contracts.Address
	Amount      uint64

	Err error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches against another *Error by Kind and (if set) Code, so callers
// can use errors.Is with sentinel values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return true
}

// Validation builds a caller-error.
func Validation(msg string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: "INVALID_INPUT", Msg: fmt.Sprintf(msg, args...)}
}

// Policy builds a policy rejection carrying the transfer context.
func Policy(reason contracts.BlockReason, vault, dest contracts.Address, amount uint64) *Error {
	return &Error{
		Kind:        KindPolicy,
		Code:        string(reason),
		Msg:         "transfer blocked by vault policy",
		Vault:       vault,
		Destination: dest,
		Amount:      amount,
	}
}

// Override builds an override-lifecycle error.
func Override(code string, vault contracts.Address, msg string) *Error {
	return &Error{Kind: KindOverride, Code: code, Msg: msg, Vault: vault}
}

// Transport wraps a transient transport failure.
func Transport(err error, msg string) *Error {
	return &Error{Kind: KindTransport, Code: "TRANSPORT", Msg: msg, Err: err}
}

// Timeout reports an elapsed confirmation window. Distinct from rejection:
// the transaction may still land after the caller stops waiting.
func Timeout(msg string, txID contracts.TxID) *Error {
	return &Error{Kind: KindTimeout, Code: "CONFIRMATION_TIMEOUT", Msg: fmt.Sprintf("%s (tx %s)", msg, txID)}
}

// Collaborator wraps a Guardian-side failure.
func Collaborator(err error, msg string) *Error {
	return &Error{Kind: KindCollaborator, Code: "GUARDIAN", Msg: msg, Err: err}
}

// Internal wraps an unexpected invariant failure.
func Internal(err error, msg string) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether err is a classified-transient failure.
// Policy rejections, validation errors and override errors never retry.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindTimeout:
		return true
	}
	return false
}

// BlockReasonOf extracts the policy block reason from err, if any.
func BlockReasonOf(err error) (contracts.BlockReason, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindPolicy {
		return contracts.BlockReason(e.Code), true
	}
	return "", false
}
