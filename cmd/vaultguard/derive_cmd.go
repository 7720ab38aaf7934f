package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/vaultguard-labs/vaultguard-go/pkg/address"
	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
)

// runDeriveCmd implements `vaultguard derive`: prints the deterministic
// vault and funds addresses for an authority and nonce, without
// touching a ledger.
func runDeriveCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("derive", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		ownerHex string
		nonce    uint64
	)
	cmd.StringVar(&ownerHex, "owner", "", "Authority address, 64 hex chars (REQUIRED)")
	cmd.Uint64Var(&nonce, "nonce", 0, "Vault nonce")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if ownerHex == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --owner is required")
		return 2
	}
	owner, err := contracts.ParseAddress(ownerHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	vaultAddr, vaultBump, err := address.Vault(owner, nonce)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	funds, fundsBump, err := address.VaultAuthority(vaultAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	_ = json.NewEncoder(stdout).Encode(map[string]any{
		"owner":     owner,
		"nonce":     nonce,
		"vault":     vaultAddr,
		"vaultBump": vaultBump,
		"funds":     funds,
		"fundsBump": fundsBump,
	})
	return 0
}
