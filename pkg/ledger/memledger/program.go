package memledger

import (
	"errors"
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/address"
	"github.com/vaultguard-labs/vaultguard-go/pkg/amount"
	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/guard"
	"github.com/vaultguard-labs/vaultguard-go/pkg/ledger"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

var programByBlockReason = map[contracts.BlockReason]ledger.ProgramError{
	contracts.BlockVaultPaused:        ledger.CodeVaultPaused,
	contracts.BlockNotWhitelisted:     ledger.CodeNotWhitelisted,
	contracts.BlockDailyLimitExceeded: ledger.CodeDailyLimitExceeded,
	contracts.BlockInsufficientFunds:  ledger.CodeInsufficientFunds,
}

var programByOverrideCode = map[string]ledger.ProgramError{
	errs.CodeOverrideExpired:         ledger.CodeOverrideExpired,
	errs.CodeOverrideAlreadyExecuted: ledger.CodeOverrideAlreadyExecuted,
	errs.CodeOverrideNotFound:        ledger.CodeOverrideNotFound,
	errs.CodeOverrideNotApproved:     ledger.CodeOverrideNotApproved,
	errs.CodeOverrideCancelled:       ledger.CodeOverrideCancelled,
}

// programErr translates the shared policy/override errors into the
// program's wire error codes, so the fake fails the way the real
// program does and the client's Classify path is exercised.
func programErr(err error, in *ledger.Instruction) error {
	if err == nil {
		return nil
	}
	var e *errs.Error
	if errors.As(err, &e) {
		if code, ok := programByOverrideCode[e.Code]; ok {
			return &ledger.ProgramFailure{Code: code, Vault: in.Vault}
		}
		switch e.Kind {
		case errs.KindPolicy:
			if code, ok := programByBlockReason[contracts.BlockReason(e.Code)]; ok {
				return &ledger.ProgramFailure{Code: code, Vault: e.Vault, Destination: e.Destination, Amount: e.Amount}
			}
		case errs.KindValidation:
			return &ledger.ProgramFailure{Code: ledger.CodeInvalidArgument, Vault: in.Vault}
		}
	}
	return err
}

// apply executes one instruction against ledger state. Caller holds the
// node lock, so the whole instruction is atomic.
func (l *Ledger) apply(signer contracts.Address, in *ledger.Instruction, now time.Time) error {
	if in.Op == ledger.OpInitializeVault {
		return l.applyInitialize(signer, in, now)
	}

	entry, ok := l.vaults[in.Vault]
	if !ok {
		return &ledger.ProgramFailure{Code: ledger.CodeInvalidArgument, Vault: in.Vault}
	}
	s := entry.state

	switch in.Op {
	case ledger.OpExecuteTransfer:
		return l.applyTransfer(signer, entry, in, now)

	case ledger.OpUpdatePolicy:
		if signer != s.Authority {
			return &ledger.ProgramFailure{Code: ledger.CodeUnauthorizedSigner, Vault: in.Vault}
		}
		a, err := ledger.DecodePolicy(in.Args)
		if err != nil {
			return programErr(err, in)
		}
		if err := amount.ValidateBasisPoints(a.FeeBasisPoints); err != nil {
			return programErr(err, in)
		}
		s.DailyLimit = a.DailyLimit
		s.FeeBasisPoints = a.FeeBasisPoints
		return nil

	case ledger.OpAddWhitelist, ledger.OpRemoveWhitelist:
		if signer != s.Authority {
			return &ledger.ProgramFailure{Code: ledger.CodeUnauthorizedSigner, Vault: in.Vault}
		}
		dest, err := ledger.DecodeWhitelistChange(in.Args)
		if err != nil {
			return programErr(err, in)
		}
		if in.Op == ledger.OpAddWhitelist {
			return programErr(s.AddWhitelisted(dest), in)
		}
		return programErr(s.RemoveWhitelisted(dest), in)

	case ledger.OpPause, ledger.OpResume:
		if signer != s.Authority {
			return &ledger.ProgramFailure{Code: ledger.CodeUnauthorizedSigner, Vault: in.Vault}
		}
		s.Paused = in.Op == ledger.OpPause
		return nil

	case ledger.OpCreateOverride:
		if signer != s.Authority && signer != s.AgentSigner {
			return &ledger.ProgramFailure{Code: ledger.CodeUnauthorizedSigner, Vault: in.Vault}
		}
		a, err := ledger.DecodeCreateOverride(in.Args)
		if err != nil {
			return programErr(err, in)
		}
		_, err = l.overrides.Request(s, in.Vault, a.Destination, a.Amount, a.Reason)
		return programErr(err, in)

	case ledger.OpApproveOverride:
		if signer != s.Authority {
			return &ledger.ProgramFailure{Code: ledger.CodeUnauthorizedSigner, Vault: in.Vault}
		}
		nonce, err := ledger.DecodeOverrideAction(in.Args)
		if err != nil {
			return programErr(err, in)
		}
		return programErr(l.overrides.Approve(in.Vault, nonce), in)

	case ledger.OpExecuteOverride:
		return l.applyExecuteOverride(signer, entry, in)

	case ledger.OpCancelOverride:
		if signer != s.Authority {
			return &ledger.ProgramFailure{Code: ledger.CodeUnauthorizedSigner, Vault: in.Vault}
		}
		nonce, err := ledger.DecodeOverrideAction(in.Args)
		if err != nil {
			return programErr(err, in)
		}
		return programErr(l.overrides.Cancel(in.Vault, nonce), in)
	}

	return &ledger.ProgramFailure{Code: ledger.CodeInvalidArgument, Vault: in.Vault}
}

func (l *Ledger) applyInitialize(signer contracts.Address, in *ledger.Instruction, now time.Time) error {
	a, err := ledger.DecodeInitializeVault(in.Args)
	if err != nil {
		return programErr(err, in)
	}
	if _, exists := l.vaults[in.Vault]; exists {
		return &ledger.ProgramFailure{Code: ledger.CodeVaultAlreadyExists, Vault: in.Vault}
	}
	derived, bump, err := address.Vault(signer, a.VaultNonce)
	if err != nil || derived != in.Vault {
		return &ledger.ProgramFailure{Code: ledger.CodeInvalidArgument, Vault: in.Vault}
	}
	if err := amount.ValidateBasisPoints(a.FeeBasisPoints); err != nil {
		return programErr(err, in)
	}
	funds, _, err := address.VaultAuthority(in.Vault)
	if err != nil {
		return programErr(err, in)
	}
	l.vaults[in.Vault] = &vaultEntry{
		state: &vault.State{
			Authority:      signer,
			AgentSigner:    a.AgentSigner,
			DailyLimit:     a.DailyLimit,
			LastResetAt:    now,
			FeeBasisPoints: a.FeeBasisPoints,
			Name:           a.Name,
			VaultNonce:     a.VaultNonce,
			Bump:           bump,
		},
		funds: funds,
	}
	return nil
}

func (l *Ledger) applyTransfer(signer contracts.Address, entry *vaultEntry, in *ledger.Instruction, now time.Time) error {
	s := entry.state
	a, err := ledger.DecodeTransfer(in.Args)
	if err != nil {
		return programErr(err, in)
	}
	switch a.Role {
	case contracts.RoleOwner:
		if signer != s.Authority {
			return &ledger.ProgramFailure{Code: ledger.CodeUnauthorizedSigner, Vault: in.Vault}
		}
	case contracts.RoleAgent:
		if signer != s.AgentSigner {
			return &ledger.ProgramFailure{Code: ledger.CodeUnauthorizedSigner, Vault: in.Vault}
		}
	}

	balance := l.balances[entry.funds]
	d := guard.Evaluate(s, guard.Proposal{
		Destination: a.Destination,
		Amount:      a.Amount,
		Balance:     balance,
		Now:         now,
	})
	if !d.Allowed {
		return &ledger.ProgramFailure{
			Code:        programByBlockReason[d.Reason],
			Vault:       in.Vault,
			Destination: a.Destination,
			Amount:      a.Amount,
		}
	}

	s.ApplyRollover(now)
	s.RecordSpend(a.Amount)
	fee := amount.Fee(a.Amount, s.FeeBasisPoints)
	l.balances[entry.funds] -= a.Amount
	l.balances[a.Destination] += a.Amount - fee
	l.balances[l.treasury] += fee
	return nil
}

func (l *Ledger) applyExecuteOverride(signer contracts.Address, entry *vaultEntry, in *ledger.Instruction) error {
	s := entry.state
	if signer != s.Authority && signer != s.AgentSigner {
		return &ledger.ProgramFailure{Code: ledger.CodeUnauthorizedSigner, Vault: in.Vault}
	}
	nonce, err := ledger.DecodeOverrideAction(in.Args)
	if err != nil {
		return programErr(err, in)
	}
	p, err := l.overrides.Get(in.Vault, nonce)
	if err != nil {
		return programErr(err, in)
	}
	fee, net, err := l.overrides.Execute(s, in.Vault, nonce, l.balances[entry.funds])
	if err != nil {
		return programErr(err, in)
	}
	l.balances[entry.funds] -= fee + net
	l.balances[p.Destination] += net
	l.balances[l.treasury] += fee
	return nil
}
