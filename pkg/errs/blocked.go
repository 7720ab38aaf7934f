package errs

import (
	"fmt"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
)

// BlockedTransfer is returned when the ledger definitively rejected a
// transfer on policy grounds. When auto-override is enabled it also
// carries the override the client created in response, so the caller
// receives the block and the next action in one value.
type BlockedTransfer struct {
	Reason      contracts.BlockReason
	Vault       contracts.Address
	Destination contracts.Address
	Amount      uint64

	// OverrideCreated reports whether an override request was
	// auto-created; OverrideNonce is only meaningful when it is set.
	// A flag rather than a nonce sentinel: nonce 0 is a vault's real
	// first override.
	OverrideCreated bool
	OverrideNonce   uint64
	// ApprovalURL is the Guardian-issued approval link, when available.
	// Empty if the Guardian was unreachable; the override still exists.
	ApprovalURL string
}

func (b *BlockedTransfer) Error() string {
	s := fmt.Sprintf("transfer of %d to %s blocked: %s", b.Amount, b.Destination.Short(), b.Reason)
	if b.OverrideCreated {
		s += fmt.Sprintf(" (override #%d pending approval)", b.OverrideNonce)
	}
	return s
}

// Unwrap exposes the underlying policy error so errors.Is/As keep working.
func (b *BlockedTransfer) Unwrap() error {
	return Policy(b.Reason, b.Vault, b.Destination, b.Amount)
}
