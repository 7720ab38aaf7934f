package override_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/override"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

var (
	vaultAddr = contracts.MustAddress("aa000000000000000000000000000000000000000000000000000000000000aa")
	destAddr  = contracts.MustAddress("bb000000000000000000000000000000000000000000000000000000000000bb")
	base      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newManager(now *time.Time) *override.Manager {
	return override.NewManager().WithClock(func() time.Time { return *now })
}

func newState() *vault.State {
	return &vault.State{
		DailyLimit:     1_000_000_000,
		LastResetAt:    base,
		FeeBasisPoints: 25,
		OverrideNonce:  10,
	}
}

func TestRequestConsumesNonce(t *testing.T) {
	now := base
	m := newManager(&now)
	s := newState()

	p1, err := m.Request(s, vaultAddr, destAddr, 800_000_000, contracts.BlockDailyLimitExceeded)
	require.NoError(t, err)
	p2, err := m.Request(s, vaultAddr, destAddr, 500, contracts.BlockNotWhitelisted)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), p1.Nonce)
	assert.Equal(t, uint64(11), p2.Nonce)
	assert.Equal(t, uint64(12), s.OverrideNonce)
	assert.Equal(t, 2, m.PendingCount())
}

func TestRequestRejectsNonEscalatable(t *testing.T) {
	now := base
	m := newManager(&now)
	_, err := m.Request(newState(), vaultAddr, destAddr, 500, contracts.BlockVaultPaused)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = m.Request(newState(), vaultAddr, destAddr, 0, contracts.BlockDailyLimitExceeded)
	require.Error(t, err)
}

func TestApproveThenExecute(t *testing.T) {
	now := base
	m := newManager(&now)
	s := newState()

	p, err := m.Request(s, vaultAddr, destAddr, 800_000_000, contracts.BlockDailyLimitExceeded)
	require.NoError(t, err)
	assert.Equal(t, contracts.OverrideRequested, p.Status(now))

	require.NoError(t, m.MarkRegistered(vaultAddr, p.Nonce))
	assert.Equal(t, contracts.OverridePendingApproval, p.Status(now))

	// Creation alone never authorizes execution.
	_, _, err = m.Execute(s, vaultAddr, p.Nonce, 10_000_000_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &errs.Error{Kind: errs.KindOverride, Code: errs.CodeOverrideNotApproved}))

	require.NoError(t, m.Approve(vaultAddr, p.Nonce))
	// Approving twice while unexpired is a no-op.
	require.NoError(t, m.Approve(vaultAddr, p.Nonce))

	fee, net, err := m.Execute(s, vaultAddr, p.Nonce, 10_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), fee) // 25bp of 800M
	assert.Equal(t, uint64(798_000_000), net)
	assert.Equal(t, contracts.OverrideExecuted, p.Status(now))

	// Execution does not count against the daily limit.
	assert.Equal(t, uint64(0), s.SpentToday)
}

func TestExecuteTwiceFails(t *testing.T) {
	now := base
	m := newManager(&now)
	s := newState()

	p, err := m.Request(s, vaultAddr, destAddr, 500, contracts.BlockNotWhitelisted)
	require.NoError(t, err)
	require.NoError(t, m.Approve(vaultAddr, p.Nonce))

	_, _, err = m.Execute(s, vaultAddr, p.Nonce, 1_000)
	require.NoError(t, err)

	_, _, err = m.Execute(s, vaultAddr, p.Nonce, 1_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &errs.Error{Kind: errs.KindOverride, Code: errs.CodeOverrideAlreadyExecuted}))
}

func TestExpiry(t *testing.T) {
	now := base
	m := newManager(&now)
	s := newState()

	p, err := m.Request(s, vaultAddr, destAddr, 500, contracts.BlockNotWhitelisted)
	require.NoError(t, err)
	require.NoError(t, m.Approve(vaultAddr, p.Nonce))

	now = base.Add(override.DefaultExpiry + time.Second)
	assert.Equal(t, contracts.OverrideExpired, p.Status(now))

	_, _, err = m.Execute(s, vaultAddr, p.Nonce, 1_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &errs.Error{Kind: errs.KindOverride, Code: errs.CodeOverrideExpired}))

	// Late approval also fails.
	err = m.Approve(vaultAddr, p.Nonce)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &errs.Error{Kind: errs.KindOverride, Code: errs.CodeOverrideExpired}))
}

func TestApproveExpiredEvenIfPreviouslyApproved(t *testing.T) {
	now := base
	m := newManager(&now)
	s := newState()

	p, err := m.Request(s, vaultAddr, destAddr, 500, contracts.BlockNotWhitelisted)
	require.NoError(t, err)
	require.NoError(t, m.Approve(vaultAddr, p.Nonce))

	now = base.Add(2 * override.DefaultExpiry)
	// Once expired, “already approved” no longer shields the call.
	require.Error(t, m.Approve(vaultAddr, p.Nonce))
}

func TestExecuteRespectsPause(t *testing.T) {
	now := base
	m := newManager(&now)
	s := newState()

	p, err := m.Request(s, vaultAddr, destAddr, 500, contracts.BlockNotWhitelisted)
	require.NoError(t, err)
	require.NoError(t, m.Approve(vaultAddr, p.Nonce))

	s.Paused = true
	_, _, err = m.Execute(s, vaultAddr, p.Nonce, 1_000)
	require.Error(t, err)
	reason, ok := errs.BlockReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, contracts.BlockVaultPaused, reason)
}

func TestExecuteChecksBalance(t *testing.T) {
	now := base
	m := newManager(&now)
	s := newState()

	p, err := m.Request(s, vaultAddr, destAddr, 5_000, contracts.BlockDailyLimitExceeded)
	require.NoError(t, err)
	require.NoError(t, m.Approve(vaultAddr, p.Nonce))

	_, _, err = m.Execute(s, vaultAddr, p.Nonce, 100)
	require.Error(t, err)
	reason, ok := errs.BlockReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, contracts.BlockInsufficientFunds, reason)
}

func TestCancel(t *testing.T) {
	now := base
	m := newManager(&now)
	s := newState()

	p, err := m.Request(s, vaultAddr, destAddr, 500, contracts.BlockNotWhitelisted)
	require.NoError(t, err)
	require.NoError(t, m.Cancel(vaultAddr, p.Nonce))
	assert.Equal(t, contracts.OverrideCancelled, p.Status(now))

	require.Error(t, m.Approve(vaultAddr, p.Nonce))
	_, _, err = m.Execute(s, vaultAddr, p.Nonce, 1_000)
	require.Error(t, err)
}

func TestNotFound(t *testing.T) {
	m := override.NewManager()
	_, err := m.Get(vaultAddr, 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &errs.Error{Kind: errs.KindOverride, Code: errs.CodeOverrideNotFound}))
}

func TestReceipt(t *testing.T) {
	now := base
	m := newManager(&now)
	s := newState()

	p, err := m.Request(s, vaultAddr, destAddr, 500, contracts.BlockNotWhitelisted)
	require.NoError(t, err)

	r1, err := override.NewReceipt(p, now)
	require.NoError(t, err)
	r2, err := override.NewReceipt(p, now)
	require.NoError(t, err)
	assert.Equal(t, r1.ContentHash, r2.ContentHash)
	assert.Equal(t, contracts.OverrideRequested, r1.Outcome)
}
