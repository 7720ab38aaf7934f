// Package pipeline drives a transaction from built to confirmed: sign
// against a fresh chain tip, journal, submit, and poll for the
// confirmation outcome. It owns all retry policy; callers see exactly
// one of confirmed, rejected, or timed out.
//
// Two rules are absolute. The journal entry is written before the wire
// call, so a crash can never lose track of an in-flight transfer. And an
// ambiguous submission is never retried until a confirmation read proves
// the first attempt did not land.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/keyring"
	"github.com/vaultguard-labs/vaultguard-go/pkg/ledger"
	"github.com/vaultguard-labs/vaultguard-go/pkg/observability"
	"github.com/vaultguard-labs/vaultguard-go/pkg/store"
)

// State is where a run ended.
type State string

const (
	StateConfirmed State = "CONFIRMED"
	StateRejected  State = "REJECTED"
	StateTimedOut  State = "TIMED_OUT"
)

// Result reports one completed run.
type Result struct {
	TxID   contracts.TxID
	State  State
	Height uint64
	// Attempts counts submissions, including the successful one.
	Attempts int
}

// Pipeline is safe for concurrent use; each Run is independent.
type Pipeline struct {
	transport ledger.Transport
	journal   store.Journal
	obs       *observability.Provider
	log       *slog.Logger

	maxAttempts    int
	backoff        Backoff
	confirmTimeout time.Duration
	pollInterval   time.Duration

	clock func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxAttempts bounds submissions per run.
func WithMaxAttempts(n int) Option {
	return func(p *Pipeline) { p.maxAttempts = n }
}

// WithBackoff replaces the retry schedule.
func WithBackoff(b Backoff) Option {
	return func(p *Pipeline) { p.backoff = b }
}

// WithConfirmTimeout bounds how long a run waits for finalization.
func WithConfirmTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.confirmTimeout = d }
}

// WithPollInterval sets the confirmation polling rate.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.pollInterval = d }
}

// WithObservability attaches the metrics provider.
func WithObservability(obs *observability.Provider) Option {
	return func(p *Pipeline) { p.obs = obs }
}

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithClock overrides the clock for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

func New(transport ledger.Transport, journal store.Journal, opts ...Option) *Pipeline {
	p := &Pipeline{
		transport:      transport,
		journal:        journal,
		log:            slog.Default(),
		maxAttempts:    5,
		backoff:        Backoff{Base: 250 * time.Millisecond, Max: 8 * time.Second},
		confirmTimeout: 45 * time.Second,
		pollInterval:   500 * time.Millisecond,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run signs and lands one instruction. The returned error (when State is
// not confirmed) is already classified into the SDK taxonomy.
func (p *Pipeline) Run(ctx context.Context, signer *keyring.Keyring, in *ledger.Instruction) (res *Result, err error) {
	if p.obs != nil {
		var done func(error)
		ctx, done = p.obs.TrackOperation(ctx, in.Op.String())
		defer func() { done(err) }()
	}

	res = &Result{}
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.backoff.Delay(attempt-1)); err != nil {
				return res, ledger.Classify(err)
			}
		}
		res.Attempts = attempt + 1

		signed, err := p.buildAndSign(ctx, signer, in)
		if err != nil {
			return res, err
		}
		res.TxID = signed.ID()

		// Journal before the wire call: crash recovery depends on it.
		rec := store.NewSubmissionRecord(res.TxID, in.Vault, in.Op.String(), p.clock())
		rec.Attempts = res.Attempts
		if err := p.journal.Record(ctx, rec); err != nil {
			return res, errs.Internal(err, "journaling submission")
		}

		id, submitErr := p.transport.SubmitTransaction(ctx, signed)
		if submitErr == nil {
			res.TxID = id
			return p.awaitConfirmation(ctx, rec, res)
		}

		classified := ledger.Classify(submitErr)

		if txID, ambiguous := ledger.IsAmbiguous(classified); ambiguous {
			_ = p.journal.Resolve(ctx, rec.ID, store.StatusAmbiguous, classified.Error(), p.clock())
			outcome, recErr := p.reconcile(ctx, txID, signed.Tx.Tip)
			if recErr != nil {
				return res, recErr
			}
			switch outcome.State {
			case ledger.ConfirmationFinalized:
				res.TxID = txID
				_ = p.journal.Resolve(ctx, rec.ID, store.StatusConfirmed, "", p.clock())
				res.State = StateConfirmed
				res.Height = outcome.Height
				return res, nil
			case ledger.ConfirmationFailed:
				res.TxID = txID
				return p.reject(ctx, rec, res, outcome.Err)
			}
			// Proven not landed; safe to rebuild and retry.
			p.log.WarnContext(ctx, "ambiguous submission reconciled as not landed",
				"tx", txID, "attempt", res.Attempts)
			continue
		}

		if !errs.Retryable(classified) {
			return p.reject(ctx, rec, res, submitErr)
		}

		_ = p.journal.Resolve(ctx, rec.ID, store.StatusFailed, classified.Error(), p.clock())
		p.log.WarnContext(ctx, "submission failed, will retry",
			"tx", res.TxID, "attempt", res.Attempts, "error", classified)
	}

	res.State = StateTimedOut
	return res, errs.Timeout("submission attempts exhausted", res.TxID)
}

func (p *Pipeline) buildAndSign(ctx context.Context, signer *keyring.Keyring, in *ledger.Instruction) (*ledger.SignedTx, error) {
	tip, err := p.transport.FetchChainTip(ctx)
	if err != nil {
		return nil, ledger.Classify(err)
	}
	if !tip.Valid(p.clock()) {
		return nil, errs.Transport(nil, "ledger returned an already-expired chain tip")
	}
	signed, err := ledger.Sign(&ledger.Transaction{
		Tip:         tip,
		Signer:      signer.Address(),
		Instruction: in,
	}, signer)
	if err != nil {
		return nil, err
	}
	return signed, nil
}

// awaitConfirmation polls until the node reports a terminal state or the
// confirmation window elapses. Polling is rate limited so a tight
// confirm loop cannot hammer the node.
func (p *Pipeline) awaitConfirmation(ctx context.Context, rec *store.SubmissionRecord, res *Result) (*Result, error) {
	limiter := rate.NewLimiter(rate.Every(p.pollInterval), 1)
	deadline := p.clock().Add(p.confirmTimeout)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return res, ledger.Classify(err)
		}

		c, err := p.transport.ConfirmSignature(ctx, res.TxID)
		if err != nil {
			classified := ledger.Classify(err)
			if !errs.Retryable(classified) {
				return res, classified
			}
		} else {
			switch c.State {
			case ledger.ConfirmationFinalized:
				_ = p.journal.Resolve(ctx, rec.ID, store.StatusConfirmed, "", p.clock())
				res.State = StateConfirmed
				res.Height = c.Height
				p.log.InfoContext(ctx, "transaction confirmed",
					"tx", res.TxID, "height", c.Height, "attempts", res.Attempts)
				return res, nil
			case ledger.ConfirmationFailed:
				return p.reject(ctx, rec, res, c.Err)
			}
		}

		if p.clock().After(deadline) {
			// Distinct from rejection: the transaction may still land.
			_ = p.journal.Resolve(ctx, rec.ID, store.StatusTimedOut, "confirmation window elapsed", p.clock())
			res.State = StateTimedOut
			p.log.WarnContext(ctx, "confirmation timed out", "tx", res.TxID)
			return res, errs.Timeout("confirmation window elapsed", res.TxID)
		}
	}
}

// reconcile resolves an ambiguous submission. It polls the signature
// until the node reports a terminal state, or until the anchoring tip
// has expired and the node still has no record, which proves the
// transaction can never land.
func (p *Pipeline) reconcile(ctx context.Context, txID contracts.TxID, tip ledger.ChainTip) (ledger.Confirmation, error) {
	limiter := rate.NewLimiter(rate.Every(p.pollInterval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return ledger.Confirmation{}, ledger.Classify(err)
		}

		c, err := p.transport.ConfirmSignature(ctx, txID)
		if err != nil {
			classified := ledger.Classify(err)
			if !errs.Retryable(classified) {
				return ledger.Confirmation{}, classified
			}
			continue
		}

		switch c.State {
		case ledger.ConfirmationFinalized, ledger.ConfirmationFailed:
			return c, nil
		case ledger.ConfirmationPending:
			continue
		}

		// Unknown: only safe to give up once the tip can no longer
		// anchor the transaction.
		if !tip.Valid(p.clock()) {
			return c, nil
		}
	}
}

func (p *Pipeline) reject(ctx context.Context, rec *store.SubmissionRecord, res *Result, cause error) (*Result, error) {
	if cause == nil {
		cause = errs.Internal(nil, "node reported failure without a cause")
	}
	classified := ledger.Classify(cause)
	_ = p.journal.Resolve(ctx, rec.ID, store.StatusFailed, classified.Error(), p.clock())
	res.State = StateRejected
	if reason, ok := errs.BlockReasonOf(classified); ok && p.obs != nil {
		p.obs.RecordBlocked(ctx, string(reason))
	}
	p.log.InfoContext(ctx, "transaction rejected",
		"tx", res.TxID, "error", classified)
	return res, classified
}

// Recover lists journal entries that were in flight when the process
// died and resolves each by asking the node. Call once at startup,
// before submitting anything new.
func (p *Pipeline) Recover(ctx context.Context) ([]*store.SubmissionRecord, error) {
	pending, err := p.journal.ListUnresolved(ctx)
	if err != nil {
		return nil, errs.Internal(err, "listing unresolved submissions")
	}

	var stillUnknown []*store.SubmissionRecord
	for _, rec := range pending {
		c, err := p.transport.ConfirmSignature(ctx, rec.TxID)
		if err != nil {
			stillUnknown = append(stillUnknown, rec)
			continue
		}
		switch c.State {
		case ledger.ConfirmationFinalized:
			_ = p.journal.Resolve(ctx, rec.ID, store.StatusConfirmed, "", p.clock())
		case ledger.ConfirmationFailed:
			msg := "rejected"
			if c.Err != nil {
				msg = c.Err.Error()
			}
			_ = p.journal.Resolve(ctx, rec.ID, store.StatusFailed, msg, p.clock())
		default:
			stillUnknown = append(stillUnknown, rec)
		}
	}
	return stillUnknown, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
