package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/vaultguard-labs/vaultguard-go/pkg/address"
	"github.com/vaultguard-labs/vaultguard-go/pkg/amount"
	"github.com/vaultguard-labs/vaultguard-go/pkg/client"
	"github.com/vaultguard-labs/vaultguard-go/pkg/config"
	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/guardian"
	"github.com/vaultguard-labs/vaultguard-go/pkg/keyring"
	"github.com/vaultguard-labs/vaultguard-go/pkg/ledger/memledger"
	"github.com/vaultguard-labs/vaultguard-go/pkg/observability"
	"github.com/vaultguard-labs/vaultguard-go/pkg/pipeline"
	"github.com/vaultguard-labs/vaultguard-go/pkg/store"
)

// runDemoCmd implements `vaultguard demo`.
//
// Spins up an in-memory ledger, initializes a vault, then walks the
// whole lifecycle: an in-policy transfer, a transfer blocked by the
// daily limit, the auto-created override, owner approval, and override
// execution. Every step prints as a JSON line.
//
// Exit codes:
//
//	0 = demo completed
//	2 = setup or runtime error
func runDemoCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("demo", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	cfg := config.Load()
	var (
		dailyLimit  string
		feeBP       uint
		fund        string
		spend       string
		overspend   string
		guardianURL string
		journalPath string
	)
	cmd.StringVar(&dailyLimit, "daily-limit", "1", "Vault daily limit in display units")
	cmd.UintVar(&feeBP, "fee-bp", 50, "Transfer fee in basis points")
	cmd.StringVar(&fund, "fund", "5", "Initial vault funding in display units")
	cmd.StringVar(&spend, "spend", "0.3", "First (in-policy) transfer amount")
	cmd.StringVar(&overspend, "overspend", "0.8", "Second (limit-breaking) transfer amount")
	cmd.StringVar(&guardianURL, "guardian", "", "Guardian base URL (optional; enables approval links)")
	cmd.StringVar(&journalPath, "journal", "", "Persist the submission journal to this sqlite file")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if err := runDemo(cfg, demoParams{
		dailyLimit:  dailyLimit,
		feeBP:       uint16(feeBP),
		fund:        fund,
		spend:       spend,
		overspend:   overspend,
		guardianURL: guardianURL,
		journalPath: journalPath,
	}, stdout); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

type demoParams struct {
	dailyLimit  string
	feeBP       uint16
	fund        string
	spend       string
	overspend   string
	guardianURL string
	journalPath string
}

func runDemo(cfg *config.Config, p demoParams, stdout io.Writer) error {
	ctx := context.Background()
	log := observability.NewLogger(cfg.LogLevel)
	out := json.NewEncoder(stdout)

	owner, err := newKeyring()
	if err != nil {
		return err
	}
	agent, err := newKeyring()
	if err != nil {
		return err
	}
	merchant, err := newKeyring()
	if err != nil {
		return err
	}

	node := memledger.New()
	journal, closeJournal, err := openJournal(p.journalPath)
	if err != nil {
		return err
	}
	defer closeJournal()

	pipe := pipeline.New(node, journal,
		pipeline.WithMaxAttempts(cfg.SubmitMaxAttempts),
		pipeline.WithConfirmTimeout(cfg.ConfirmTimeout),
		pipeline.WithLogger(log),
	)

	opts := []client.Option{client.WithLogger(log)}
	if p.guardianURL != "" {
		g, err := guardian.NewClient(p.guardianURL, guardian.NewKeyringTokenSource(agent, cfg.GuardianAudience))
		if err != nil {
			return err
		}
		opts = append(opts, client.WithGuardian(g))
	}
	cl, err := client.New(node, pipe, opts...)
	if err != nil {
		return err
	}

	vaultAddr, err := cl.InitializeVault(ctx, owner, client.InitParams{
		AgentSigner:    agent.Address(),
		DailyLimit:     p.dailyLimit,
		FeeBasisPoints: p.feeBP,
		Name:           "demo",
	})
	if err != nil {
		return err
	}
	if err := cl.AddWhitelisted(ctx, owner, vaultAddr, merchant.Address()); err != nil {
		return err
	}

	funding, err := amount.ToBaseUnits(p.fund)
	if err != nil {
		return err
	}
	funds, _, err := address.VaultAuthority(vaultAddr)
	if err != nil {
		return err
	}
	node.Fund(funds, funding)

	_ = out.Encode(map[string]any{
		"step":     "initialized",
		"vault":    vaultAddr,
		"funds":    funds,
		"merchant": merchant.Address(),
		"balance":  funding,
	})

	spendUnits, err := amount.ToBaseUnits(p.spend)
	if err != nil {
		return err
	}
	rcpt, err := cl.Transfer(ctx, agent, vaultAddr, contracts.RoleAgent, merchant.Address(), spendUnits)
	if err != nil {
		return fmt.Errorf("in-policy transfer: %w", err)
	}
	_ = out.Encode(map[string]any{"step": "transfer", "receipt": rcpt})

	overspendUnits, err := amount.ToBaseUnits(p.overspend)
	if err != nil {
		return err
	}
	_, err = cl.Transfer(ctx, agent, vaultAddr, contracts.RoleAgent, merchant.Address(), overspendUnits)
	var blocked *errs.BlockedTransfer
	if !errors.As(err, &blocked) {
		return fmt.Errorf("expected a policy block, got: %w", err)
	}
	if !blocked.OverrideCreated {
		return fmt.Errorf("blocked transfer did not escalate: %s", blocked.Reason)
	}
	_ = out.Encode(map[string]any{
		"step":        "blocked",
		"reason":      blocked.Reason,
		"nonce":       blocked.OverrideNonce,
		"approvalUrl": blocked.ApprovalURL,
	})

	if err := cl.ApproveOverride(ctx, owner, vaultAddr, blocked.OverrideNonce); err != nil {
		return err
	}
	_ = out.Encode(map[string]any{"step": "approved", "nonce": blocked.OverrideNonce})

	rcpt, err = cl.ExecuteOverride(ctx, agent, vaultAddr, blocked.OverrideNonce, merchant.Address(), overspendUnits)
	if err != nil {
		return err
	}
	_ = out.Encode(map[string]any{"step": "override-executed", "receipt": rcpt})

	s, err := cl.VaultState(ctx, vaultAddr)
	if err != nil {
		return err
	}
	balance, err := cl.SpendableBalance(ctx, vaultAddr)
	if err != nil {
		return err
	}
	_ = out.Encode(map[string]any{
		"step":        "status",
		"spent_today": s.SpentToday,
		"daily_limit": s.DailyLimit,
		"balance":     balance,
		"paused":      s.Paused,
	})
	return nil
}

func newKeyring() (*keyring.Keyring, error) {
	prov, err := keyring.NewMemoryKeyProvider()
	if err != nil {
		return nil, err
	}
	return keyring.New(prov)
}

func openJournal(path string) (store.Journal, func(), error) {
	if path == "" {
		return store.NewMemoryJournal(), func() {}, nil
	}
	j, err := store.OpenSQLiteJournal(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal: %w", err)
	}
	return j, func() { _ = j.Close() }, nil
}
