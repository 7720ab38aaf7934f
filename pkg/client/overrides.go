package client

import (
	"context"

	"github.com/vaultguard-labs/vaultguard-go/pkg/amount"
	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/guardian"
	"github.com/vaultguard-labs/vaultguard-go/pkg/keyring"
	"github.com/vaultguard-labs/vaultguard-go/pkg/ledger"
)

// blocked handles a definitive policy rejection: notify the Guardian,
// auto-escalate when the reason allows it, and fold everything the
// caller needs into one *errs.BlockedTransfer.
func (cl *Client) blocked(ctx context.Context, signer *keyring.Keyring, vaultAddr contracts.Address, dest contracts.Address, amt uint64, reason contracts.BlockReason) error {
	cl.recordBlocked(ctx, string(reason))
	bt := &errs.BlockedTransfer{
		Reason:      reason,
		Vault:       vaultAddr,
		Destination: dest,
		Amount:      amt,
	}

	if !cl.autoOverride || !reason.Escalatable() {
		cl.notifyGuardian(ctx, bt, nil)
		return bt
	}

	nonce, err := cl.RequestOverride(ctx, signer, vaultAddr, dest, amt, reason)
	if err != nil {
		// The block stands either way; escalation failure is logged,
		// not surfaced over the original rejection.
		cl.log.WarnContext(ctx, "auto-override failed",
			"vault", vaultAddr.Short(), "reason", reason, "error", err)
		cl.notifyGuardian(ctx, bt, nil)
		return bt
	}
	bt.OverrideCreated = true
	bt.OverrideNonce = nonce
	cl.notifyGuardian(ctx, bt, &nonce)
	return bt
}

// notifyGuardian is strictly advisory; on success it backfills the
// approval URL into bt.
func (cl *Client) notifyGuardian(ctx context.Context, bt *errs.BlockedTransfer, nonce *uint64) {
	if cl.guardian == nil {
		return
	}
	notice := guardian.BlockedNotice{
		Vault:         bt.Vault,
		Destination:   bt.Destination,
		Amount:        bt.Amount,
		Reason:        bt.Reason,
		OverrideNonce: nonce,
		OccurredAt:    cl.clock(),
	}
	ack, err := cl.guardian.NotifyBlocked(ctx, notice)
	if err != nil {
		cl.log.WarnContext(ctx, "guardian notification failed", "error", err)
		return
	}
	bt.ApprovalURL = ack.ApprovalURL

	if nonce != nil {
		view, err := cl.guardian.RegisterOverride(ctx, bt.Vault, *nonce, notice)
		if err != nil {
			cl.log.WarnContext(ctx, "guardian override registration failed",
				"nonce", *nonce, "error", err)
			return
		}
		if view.ApprovalURL != "" {
			bt.ApprovalURL = view.ApprovalURL
		}
	}
}

// RequestOverride places an override request on-ledger and returns the
// nonce it consumed.
func (cl *Client) RequestOverride(ctx context.Context, signer *keyring.Keyring, vaultAddr contracts.Address, dest contracts.Address, amt uint64, reason contracts.BlockReason) (uint64, error) {
	if err := amount.ValidateTransfer(amt); err != nil {
		return 0, err
	}

	// The request consumes the vault's current nonce; read it before
	// submitting so the caller can reference the override.
	cl.invalidate(ctx, vaultAddr)
	s, err := cl.VaultState(ctx, vaultAddr)
	if err != nil {
		return 0, err
	}
	nonce := s.OverrideNonce

	in, err := ledger.NewCreateOverride(vaultAddr, ledger.CreateOverrideArgs{
		Destination: dest,
		Amount:      amt,
		Reason:      reason,
	})
	if err != nil {
		return 0, err
	}
	if _, err := cl.pipe.Run(ctx, signer, in); err != nil {
		cl.invalidate(ctx, vaultAddr)
		return 0, err
	}
	cl.invalidate(ctx, vaultAddr)
	cl.recordOverride(ctx, "requested")
	cl.log.InfoContext(ctx, "override requested",
		"vault", vaultAddr.Short(), "nonce", nonce, "amount", amt, "reason", reason)
	return nonce, nil
}

// ApproveOverride approves a pending override. Owner-signed.
func (cl *Client) ApproveOverride(ctx context.Context, owner *keyring.Keyring, vaultAddr contracts.Address, nonce uint64) error {
	in, err := ledger.NewOverrideAction(vaultAddr, ledger.OpApproveOverride, nonce)
	if err != nil {
		return err
	}
	if _, err := cl.pipe.Run(ctx, owner, in); err != nil {
		return err
	}
	cl.recordOverride(ctx, "approved")
	return nil
}

// CancelOverride terminates a non-executed override. Owner-signed.
func (cl *Client) CancelOverride(ctx context.Context, owner *keyring.Keyring, vaultAddr contracts.Address, nonce uint64) error {
	in, err := ledger.NewOverrideAction(vaultAddr, ledger.OpCancelOverride, nonce)
	if err != nil {
		return err
	}
	if _, err := cl.pipe.Run(ctx, owner, in); err != nil {
		return err
	}
	cl.recordOverride(ctx, "cancelled")
	return nil
}

// ExecuteOverride executes an approved override and returns the
// resulting transfer receipt. Exactly-once is enforced on-ledger; a
// repeat call fails with OVERRIDE_ALREADY_EXECUTED.
func (cl *Client) ExecuteOverride(ctx context.Context, signer *keyring.Keyring, vaultAddr contracts.Address, nonce uint64, dest contracts.Address, amt uint64) (*ExecutionReceipt, error) {
	s, err := cl.VaultState(ctx, vaultAddr)
	if err != nil {
		return nil, err
	}

	in, err := ledger.NewOverrideAction(vaultAddr, ledger.OpExecuteOverride, nonce)
	if err != nil {
		return nil, err
	}
	res, err := cl.pipe.Run(ctx, signer, in)
	cl.invalidate(ctx, vaultAddr)
	if err != nil {
		return nil, err
	}
	cl.recordOverride(ctx, "executed")

	fee := amount.Fee(amt, s.FeeBasisPoints)
	return newExecutionReceipt(ExecutionReceipt{
		TxID:        res.TxID,
		Vault:       vaultAddr,
		Destination: dest,
		Gross:       amt,
		Fee:         fee,
		Net:         amt - fee,
		Height:      res.Height,
		At:          cl.clock(),
	})
}

// OverrideStatus asks the Guardian for its view of an override. Purely
// informational; the ledger remains authoritative for execution.
func (cl *Client) OverrideStatus(ctx context.Context, vaultAddr contracts.Address, nonce uint64) (*guardian.OverrideView, error) {
	if cl.guardian == nil {
		return nil, errs.Validation("no guardian configured")
	}
	return cl.guardian.GetOverride(ctx, vaultAddr, nonce)
}

func (cl *Client) recordOverride(ctx context.Context, stage string) {
	if cl.obs != nil {
		cl.obs.RecordOverride(ctx, stage)
	}
}
