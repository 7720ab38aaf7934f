// Package client is the SDK surface an agent process uses: policy-aware
// transfers, vault administration, and the override escalation flow,
// all on top of the submit/confirm pipeline.
//
// The client mirrors the program's policy checks before submitting so
// an obviously-blocked transfer costs no ledger round-trip, but it
// never trusts its own answer: the program re-checks atomically and the
// client handles a race (state changed between read and submit) by
// classifying the program's rejection exactly like a local block.
package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/vaultguard-labs/vaultguard-go/pkg/amount"
	"github.com/vaultguard-labs/vaultguard-go/pkg/cache"
	"github.com/vaultguard-labs/vaultguard-go/pkg/canonical"
	"github.com/vaultguard-labs/vaultguard-go/pkg/config"
	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/guard"
	"github.com/vaultguard-labs/vaultguard-go/pkg/guardian"
	"github.com/vaultguard-labs/vaultguard-go/pkg/keyring"
	"github.com/vaultguard-labs/vaultguard-go/pkg/ledger"
	"github.com/vaultguard-labs/vaultguard-go/pkg/observability"
	"github.com/vaultguard-labs/vaultguard-go/pkg/pipeline"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

// Client drives one or more vaults through a ledger transport.
type Client struct {
	transport ledger.Transport
	pipe      *pipeline.Pipeline
	cache     cache.StateCache
	guardian  *guardian.Client
	rules     *guard.RuleSet
	versions  *versionGate

	autoOverride bool
	obs          *observability.Provider
	log          *slog.Logger
	clock        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithCache attaches a vault-state read cache.
func WithCache(c cache.StateCache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithGuardian attaches the approval-service client. Without it the
// override flow still works on-ledger; callers just get no approval URL.
func WithGuardian(g *guardian.Client) Option {
	return func(cl *Client) { cl.guardian = g }
}

// WithRules attaches owner-configured pre-submit rules.
func WithRules(rs *guard.RuleSet) Option {
	return func(cl *Client) { cl.rules = rs }
}

// WithProgramVersionConstraint refuses to operate against a deployed
// program outside the semver range, e.g. ">= 1.2.0 < 2.0.0".
func WithProgramVersionConstraint(constraint string) (Option, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, errs.Validation("invalid program version constraint %q", constraint)
	}
	return func(cl *Client) { cl.versions = &versionGate{constraint: c} }, nil
}

// WithAutoOverride controls whether a blocked transfer automatically
// places an override request. Default on.
func WithAutoOverride(enabled bool) Option {
	return func(cl *Client) { cl.autoOverride = enabled }
}

// WithObservability attaches the metrics provider.
func WithObservability(obs *observability.Provider) Option {
	return func(cl *Client) { cl.obs = obs }
}

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(cl *Client) { cl.log = log }
}

// WithClock overrides the clock for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(cl *Client) { cl.clock = clock }
}

func New(transport ledger.Transport, pipe *pipeline.Pipeline, opts ...Option) (*Client, error) {
	if transport == nil || pipe == nil {
		return nil, errs.Validation("client requires a transport and a pipeline")
	}
	cl := &Client{
		transport:    transport,
		pipe:         pipe,
		autoOverride: true,
		log:          slog.Default(),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl, nil
}

// OptionsFromProfile converts an operator profile into client options:
// compiled rules and the program version gate.
func OptionsFromProfile(p *config.VaultProfile) ([]Option, error) {
	var opts []Option
	if len(p.Rules) > 0 {
		exprs := make(map[string]string, len(p.Rules))
		for _, r := range p.Rules {
			exprs[r.Name] = r.Expression
		}
		rs, err := guard.NewRuleSet(exprs)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRules(rs))
	}
	if p.ProgramVersion != "" {
		opt, err := WithProgramVersionConstraint(p.ProgramVersion)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

// VaultState reads the vault account, preferring the cache.
func (cl *Client) VaultState(ctx context.Context, vaultAddr contracts.Address) (*vault.State, error) {
	if cl.cache != nil {
		if s, ok := cl.cache.Get(ctx, vaultAddr); ok {
			return s, nil
		}
	}
	info, err := cl.transport.FetchAccount(ctx, vaultAddr)
	if err != nil {
		return nil, ledger.Classify(err)
	}
	if len(info.Data) == 0 {
		return nil, errs.Validation("no vault account at %s", vaultAddr.Short())
	}
	s, err := vault.Decode(info.Data)
	if err != nil {
		return nil, err
	}
	if cl.cache != nil {
		_ = cl.cache.Put(ctx, vaultAddr, s)
	}
	return s, nil
}

// SpendableBalance reads the balance held for the vault.
func (cl *Client) SpendableBalance(ctx context.Context, vaultAddr contracts.Address) (uint64, error) {
	funds, err := fundsAddress(vaultAddr)
	if err != nil {
		return 0, err
	}
	info, err := cl.transport.FetchAccount(ctx, funds)
	if err != nil {
		return 0, ledger.Classify(err)
	}
	return info.Balance, nil
}

// ExecutionReceipt documents one landed transfer.
type ExecutionReceipt struct {
	TxID        contracts.TxID    `json:"txId"`
	Vault       contracts.Address `json:"vault"`
	Destination contracts.Address `json:"destination"`
	Gross       uint64            `json:"gross"`
	Fee         uint64            `json:"fee"`
	Net         uint64            `json:"net"`
	Height      uint64            `json:"height"`
	At          time.Time         `json:"at"`
	// Hash is the canonical digest of this receipt, stable across
	// serializations.
	Hash string `json:"-"`
}

func newExecutionReceipt(r ExecutionReceipt) (*ExecutionReceipt, error) {
	h, err := canonical.Hash(r)
	if err != nil {
		return nil, errs.Internal(err, "hashing receipt")
	}
	r.Hash = h
	return &r, nil
}

// Transfer moves funds from the vault under policy. The signer must
// match the role: the vault authority for RoleOwner, the agent signer
// for RoleAgent. A policy block returns *errs.BlockedTransfer, which
// carries the auto-created override when escalation applies.
func (cl *Client) Transfer(ctx context.Context, signer *keyring.Keyring, vaultAddr contracts.Address, role contracts.SignerRole, dest contracts.Address, amt uint64) (*ExecutionReceipt, error) {
	if err := amount.ValidateTransfer(amt); err != nil {
		return nil, err
	}
	if err := cl.checkProgramVersion(ctx); err != nil {
		return nil, err
	}

	s, err := cl.VaultState(ctx, vaultAddr)
	if err != nil {
		return nil, err
	}
	balance, err := cl.SpendableBalance(ctx, vaultAddr)
	if err != nil {
		return nil, err
	}

	proposal := guard.Proposal{
		Destination: dest,
		Amount:      amt,
		Balance:     balance,
		Now:         cl.clock(),
	}

	// Owner rules run first: they only ever tighten policy, and a rule
	// block is not escalatable on-ledger.
	if ruleName, err := cl.rules.Check(s, proposal); err != nil {
		return nil, errs.Internal(err, "evaluating rules")
	} else if ruleName != "" {
		cl.recordBlocked(ctx, "RULE:"+ruleName)
		return nil, &errs.Error{
			Kind:        errs.KindPolicy,
			Code:        "RULE_BLOCKED",
			Msg:         "transfer blocked by rule " + ruleName,
			Vault:       vaultAddr,
			Destination: dest,
			Amount:      amt,
		}
	}

	// Advisory mirror of the program's checks.
	if d := guard.Evaluate(s, proposal); !d.Allowed {
		return nil, cl.blocked(ctx, signer, vaultAddr, dest, amt, d.Reason)
	}

	in, err := ledger.NewExecuteTransfer(vaultAddr, ledger.TransferArgs{
		Destination: dest,
		Amount:      amt,
		Role:        role,
	})
	if err != nil {
		return nil, err
	}

	res, err := cl.pipe.Run(ctx, signer, in)
	cl.invalidate(ctx, vaultAddr)
	if err != nil {
		// The program can see state the client's snapshot missed; its
		// policy rejection enters the same escalation path.
		if reason, ok := errs.BlockReasonOf(err); ok {
			return nil, cl.blocked(ctx, signer, vaultAddr, dest, amt, reason)
		}
		return nil, err
	}

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

func (cl *Client) invalidate(ctx context.Context, vaultAddr contracts.Address) {
	if cl.cache != nil {
		_ = cl.cache.Invalidate(ctx, vaultAddr)
	}
}

func (cl *Client) recordBlocked(ctx context.Context, reason string) {
	if cl.obs != nil {
		cl.obs.RecordBlocked(ctx, reason)
	}
}
