package client

import (
	"context"

	"github.com/vaultguard-labs/vaultguard-go/pkg/address"
	"github.com/vaultguard-labs/vaultguard-go/pkg/amount"
	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/keyring"
	"github.com/vaultguard-labs/vaultguard-go/pkg/ledger"
)

// InitParams configures a new vault.
type InitParams struct {
	AgentSigner contracts.Address
	// DailyLimit is a decimal amount string, e.g. "1.5".
	DailyLimit     string
	FeeBasisPoints uint16
	VaultNonce     uint64
	Name           string
}

// InitializeVault creates a vault owned by the signing authority and
// returns its derived address.
func (cl *Client) InitializeVault(ctx context.Context, owner *keyring.Keyring, p InitParams) (contracts.Address, error) {
	limit, err := amount.ToBaseUnits(p.DailyLimit)
	if err != nil {
		return contracts.ZeroAddress, err
	}
	if err := amount.ValidateBasisPoints(p.FeeBasisPoints); err != nil {
		return contracts.ZeroAddress, err
	}
	if err := cl.checkProgramVersion(ctx); err != nil {
		return contracts.ZeroAddress, err
	}

	vaultAddr, _, err := address.Vault(owner.Address(), p.VaultNonce)
	if err != nil {
		return contracts.ZeroAddress, err
	}

	in, err := ledger.NewInitializeVault(vaultAddr, ledger.InitializeVaultArgs{
		AgentSigner:    p.AgentSigner,
		DailyLimit:     limit,
		FeeBasisPoints: p.FeeBasisPoints,
		VaultNonce:     p.VaultNonce,
		Name:           p.Name,
	})
	if err != nil {
		return contracts.ZeroAddress, err
	}
	if _, err := cl.pipe.Run(ctx, owner, in); err != nil {
		return contracts.ZeroAddress, err
	}

	cl.log.InfoContext(ctx, "vault initialized",
		"vault", vaultAddr.Short(), "name", p.Name, "daily_limit", limit)
	return vaultAddr, nil
}

// UpdatePolicy replaces the vault's daily limit and fee. Owner-signed.
// Lowering the limit below today's spend blocks further transfers until
// rollover without reclaiming anything already spent.
func (cl *Client) UpdatePolicy(ctx context.Context, owner *keyring.Keyring, vaultAddr contracts.Address, dailyLimit string, feeBasisPoints uint16) error {
	limit, err := amount.ToBaseUnits(dailyLimit)
	if err != nil {
		return err
	}
	if err := amount.ValidateBasisPoints(feeBasisPoints); err != nil {
		return err
	}
	in := ledger.NewUpdatePolicy(vaultAddr, ledger.PolicyArgs{
		DailyLimit:     limit,
		FeeBasisPoints: feeBasisPoints,
	})
	_, err = cl.pipe.Run(ctx, owner, in)
	cl.invalidate(ctx, vaultAddr)
	return err
}

// AddWhitelisted approves a destination. Owner-signed.
func (cl *Client) AddWhitelisted(ctx context.Context, owner *keyring.Keyring, vaultAddr, dest contracts.Address) error {
	return cl.whitelistChange(ctx, owner, vaultAddr, ledger.OpAddWhitelist, dest)
}

// RemoveWhitelisted revokes a destination. Owner-signed.
func (cl *Client) RemoveWhitelisted(ctx context.Context, owner *keyring.Keyring, vaultAddr, dest contracts.Address) error {
	return cl.whitelistChange(ctx, owner, vaultAddr, ledger.OpRemoveWhitelist, dest)
}

func (cl *Client) whitelistChange(ctx context.Context, owner *keyring.Keyring, vaultAddr contracts.Address, op ledger.OpCode, dest contracts.Address) error {
	in, err := ledger.NewWhitelistChange(vaultAddr, op, dest)
	if err != nil {
		return err
	}
	_, err = cl.pipe.Run(ctx, owner, in)
	cl.invalidate(ctx, vaultAddr)
	return err
}

// Pause freezes all spending, including approved overrides. Owner-signed.
func (cl *Client) Pause(ctx context.Context, owner *keyring.Keyring, vaultAddr contracts.Address) error {
	_, err := cl.pipe.Run(ctx, owner, ledger.NewPause(vaultAddr))
	cl.invalidate(ctx, vaultAddr)
	return err
}

// Resume lifts a pause. Owner-signed.
func (cl *Client) Resume(ctx context.Context, owner *keyring.Keyring, vaultAddr contracts.Address) error {
	_, err := cl.pipe.Run(ctx, owner, ledger.NewResume(vaultAddr))
	cl.invalidate(ctx, vaultAddr)
	return err
}
