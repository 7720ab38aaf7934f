package pipeline_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vaultguard-labs/vaultguard-go/pkg/address"
	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/keyring"
	"github.com/vaultguard-labs/vaultguard-go/pkg/ledger"
	"github.com/vaultguard-labs/vaultguard-go/pkg/ledger/memledger"
	"github.com/vaultguard-labs/vaultguard-go/pkg/observability"
	"github.com/vaultguard-labs/vaultguard-go/pkg/pipeline"
	"github.com/vaultguard-labs/vaultguard-go/pkg/store"
)

type fixture struct {
	node    *memledger.Ledger
	journal *store.MemoryJournal
	pipe    *pipeline.Pipeline
	owner   *keyring.Keyring
	agent   *keyring.Keyring
	vault   contracts.Address
	merch   contracts.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		node:    memledger.New(),
		journal: store.NewMemoryJournal(),
		merch:   contracts.MustAddress("2222222222222222222222222222222222222222222222222222222222222222"),
	}
	f.pipe = pipeline.New(f.node, f.journal,
		pipeline.WithMaxAttempts(4),
		pipeline.WithBackoff(pipeline.Backoff{Base: time.Millisecond, Max: 4 * time.Millisecond}),
		pipeline.WithConfirmTimeout(2*time.Second),
		pipeline.WithPollInterval(time.Millisecond),
	)
	f.owner = newKeyring(t, 0x11)
	f.agent = newKeyring(t, 0x12)

	var err error
	f.vault, _, err = address.Vault(f.owner.Address(), 0)
	require.NoError(t, err)

	in, err := ledger.NewInitializeVault(f.vault, ledger.InitializeVaultArgs{
		AgentSigner:    f.agent.Address(),
		DailyLimit:     1_000_000_000,
		FeeBasisPoints: 0,
		VaultNonce:     0,
		Name:           "pipeline-test",
	})
	require.NoError(t, err)
	_, err = f.pipe.Run(context.Background(), f.owner, in)
	require.NoError(t, err)

	wl, err := ledger.NewWhitelistChange(f.vault, ledger.OpAddWhitelist, f.merch)
	require.NoError(t, err)
	_, err = f.pipe.Run(context.Background(), f.owner, wl)
	require.NoError(t, err)

	funds, _, err := address.VaultAuthority(f.vault)
	require.NoError(t, err)
	f.node.Fund(funds, 10_000_000_000)
	return f
}

func newKeyring(t *testing.T, fill byte) *keyring.Keyring {
	t.Helper()
	prov, err := keyring.NewMemoryKeyProviderFromSeed(bytes.Repeat([]byte{fill}, 32))
	require.NoError(t, err)
	k, err := keyring.New(prov)
	require.NoError(t, err)
	return k
}

func (f *fixture) transferIx(t *testing.T, amt uint64) *ledger.Instruction {
	t.Helper()
	in, err := ledger.NewExecuteTransfer(f.vault, ledger.TransferArgs{
		Destination: f.merch,
		Amount:      amt,
		Role:        contracts.RoleAgent,
	})
	require.NoError(t, err)
	return in
}

func TestRunConfirmsThroughPolling(t *testing.T) {
	f := newFixture(t)
	f.node.SetConfirmDelay(2)

	res, err := f.pipe.Run(context.Background(), f.agent, f.transferIx(t, 100_000_000))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateConfirmed, res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.NotZero(t, res.Height)

	rec, err := f.journal.GetByTxID(context.Background(), res.TxID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusConfirmed, rec.Status)
}

func TestRunPolicyRejectionIsTerminal(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipe.Run(context.Background(), f.agent, f.transferIx(t, 2_000_000_000))
	require.Error(t, err)
	assert.Equal(t, pipeline.StateRejected, res.State)
	assert.Equal(t, 1, res.Attempts, "policy rejections are never retried")

	reason, ok := errs.BlockReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, contracts.BlockDailyLimitExceeded, reason)

	rec, err := f.journal.GetByTxID(context.Background(), res.TxID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
}

func TestRunReportsFailuresToTelemetry(t *testing.T) {
	f := newFixture(t)

	reader := sdkmetric.NewManualReader()
	prov, err := observability.NewWithProviders(
		sdktrace.NewTracerProvider(),
		sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	)
	require.NoError(t, err)

	pipe := pipeline.New(f.node, f.journal,
		pipeline.WithMaxAttempts(1),
		pipeline.WithPollInterval(time.Millisecond),
		pipeline.WithObservability(prov),
	)
	_, err = pipe.Run(context.Background(), f.agent, f.transferIx(t, 2_000_000_000))
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), counterValue(t, &rm, "vaultguard.submissions.total"))
	assert.Equal(t, int64(1), counterValue(t, &rm, "vaultguard.errors.total"),
		"a rejected run must land in the error counter")
}

func counterValue(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestRunRetriesTransientFailures(t *testing.T) {
	f := newFixture(t)
	f.node.FailNextSubmits(2, &ledger.RPCError{Code: ledger.RPCCodeUnavailable, Msg: "node busy"})

	res, err := f.pipe.Run(context.Background(), f.agent, f.transferIx(t, 100_000_000))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateConfirmed, res.State)
	assert.Equal(t, 3, res.Attempts)
}

func TestRunExhaustsAttempts(t *testing.T) {
	f := newFixture(t)
	f.node.FailNextSubmits(10, &ledger.RPCError{Code: ledger.RPCCodeUnavailable, Msg: "node down"})

	res, err := f.pipe.Run(context.Background(), f.agent, f.transferIx(t, 100_000_000))
	require.Error(t, err)
	assert.Equal(t, pipeline.StateTimedOut, res.State)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, errs.KindTimeout, errs.KindOf(err))
}

func TestRunReconcilesAmbiguityWithoutDoubleSpend(t *testing.T) {
	f := newFixture(t)
	f.node.AmbiguousNextSubmit()

	res, err := f.pipe.Run(context.Background(), f.agent, f.transferIx(t, 100_000_000))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateConfirmed, res.State)
	assert.Equal(t, 1, res.Attempts, "landed transaction is never resubmitted")

	// Exactly one spend despite the transport failure.
	assert.Equal(t, uint64(100_000_000), f.node.Balance(f.merch))
}

func TestBackoffScheduleIsDeterministic(t *testing.T) {
	b := pipeline.Backoff{Base: 250 * time.Millisecond, Max: 2 * time.Second}

	assert.Equal(t, 250*time.Millisecond, b.Delay(0))
	assert.Equal(t, 500*time.Millisecond, b.Delay(1))
	assert.Equal(t, time.Second, b.Delay(2))
	assert.Equal(t, 2*time.Second, b.Delay(3))
	assert.Equal(t, 2*time.Second, b.Delay(10), "delay is capped")

	// No jitter: the schedule is a pure function of the attempt number.
	for i := 0; i < 5; i++ {
		assert.Equal(t, b.Delay(2), b.Delay(2))
	}
}

func TestRecoverResolvesInFlightEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Land a transfer, then forge a journal that never saw the outcome,
	// as if the process died between submit and confirm.
	res, err := f.pipe.Run(ctx, f.agent, f.transferIx(t, 100_000_000))
	require.NoError(t, err)

	stale := store.NewSubmissionRecord(res.TxID, f.vault, "execute-transfer", time.Now())
	staleJournal := store.NewMemoryJournal()
	require.NoError(t, staleJournal.Record(ctx, stale))
	ghost := store.NewSubmissionRecord("feedface", f.vault, "execute-transfer", time.Now())
	require.NoError(t, staleJournal.Record(ctx, ghost))

	recovering := pipeline.New(f.node, staleJournal)
	unknown, err := recovering.Recover(ctx)
	require.NoError(t, err)

	rec, err := staleJournal.GetByTxID(ctx, res.TxID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusConfirmed, rec.Status, "landed entry resolved from the node")

	require.Len(t, unknown, 1)
	assert.Equal(t, contracts.TxID("feedface"), unknown[0].TxID, "node has no record; left for the operator")
}
