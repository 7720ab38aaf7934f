package client

import (
	"context"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/vaultguard-labs/vaultguard-go/pkg/address"
	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/ledger"
)

// versionGate checks the deployed program version against a semver
// constraint once and remembers the answer for the process lifetime: a
// program deploy mid-run bumps the config account, but the operational
// response to that is a restart, not a silent re-check.
type versionGate struct {
	constraint *semver.Constraints

	once   sync.Once
	result error
}

func (cl *Client) checkProgramVersion(ctx context.Context) error {
	if cl.versions == nil {
		return nil
	}
	cl.versions.once.Do(func() {
		cl.versions.result = cl.versions.check(ctx, cl.transport)
	})
	return cl.versions.result
}

func (g *versionGate) check(ctx context.Context, t ledger.Transport) error {
	cfgAddr, err := programConfigAddress()
	if err != nil {
		return err
	}
	info, err := t.FetchAccount(ctx, cfgAddr)
	if err != nil {
		return ledger.Classify(err)
	}
	raw := strings.TrimSpace(string(info.Data))
	if raw == "" {
		return errs.Validation("program config account is empty; cannot verify program version")
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return errs.Validation("program reports unparseable version %q", raw)
	}
	if !g.constraint.Check(v) {
		return errs.Validation("program version %s outside supported range %s", v, g.constraint)
	}
	return nil
}

func programConfigAddress() (contracts.Address, error) {
	addr, _, err := address.Derive("program-config")
	if err != nil {
		return contracts.ZeroAddress, errs.Internal(err, "deriving program config address")
	}
	return addr, nil
}

func fundsAddress(vaultAddr contracts.Address) (contracts.Address, error) {
	funds, _, err := address.VaultAuthority(vaultAddr)
	if err != nil {
		return contracts.ZeroAddress, errs.Internal(err, "deriving vault funds address")
	}
	return funds, nil
}
