package guardian_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/guardian"
	"github.com/vaultguard-labs/vaultguard-go/pkg/keyring"
	"github.com/vaultguard-labs/vaultguard-go/pkg/util/resiliency"
)

func agentKeyring(t *testing.T) *keyring.Keyring {
	t.Helper()
	prov, err := keyring.NewMemoryKeyProviderFromSeed(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	k, err := keyring.New(prov)
	require.NoError(t, err)
	return k
}

// guardianStub verifies the bearer token the way a real Guardian would.
func guardianStub(t *testing.T, agent contracts.Address, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		token, err := jwt.Parse(raw, guardian.VerifyKeyFunc(), jwt.WithValidMethods([]string{"EdDSA"}))
		if err != nil || !token.Valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		iss, _ := token.Claims.GetIssuer()
		if iss != agent.String() {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		handler(w, r)
	}))
}

func newTestClient(t *testing.T, baseURL string, k *keyring.Keyring) *guardian.Client {
	t.Helper()
	c, err := guardian.NewClient(baseURL,
		guardian.NewKeyringTokenSource(k, "guardian"),
		guardian.WithHTTPClient(resiliency.New("guardian-test", resiliency.WithMaxRetries(1), resiliency.WithBaseDelay(time.Millisecond))),
	)
	require.NoError(t, err)
	return c
}

func TestNotifyBlocked(t *testing.T) {
	k := agentKeyring(t)
	vaultAddr := contracts.MustAddress("0101010101010101010101010101010101010101010101010101010101010101")

	srv := guardianStub(t, k.Address(), func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transactions/blocked", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("traceparent"))

		var n guardian.BlockedNotice
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		assert.Equal(t, vaultAddr, n.Vault)
		assert.Equal(t, contracts.BlockDailyLimitExceeded, n.Reason)

		_ = json.NewEncoder(w).Encode(guardian.BlockedAck{
			TransactionID: "grd-123",
			ApprovalURL:   "https://guardian.example/approve/grd-123",
		})
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL, k)
	ack, err := c.NotifyBlocked(context.Background(), guardian.BlockedNotice{
		Vault:       vaultAddr,
		Destination: contracts.MustAddress("0202020202020202020202020202020202020202020202020202020202020202"),
		Amount:      2_000_000_000,
		Reason:      contracts.BlockDailyLimitExceeded,
		OccurredAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "grd-123", ack.TransactionID)
	assert.Contains(t, ack.ApprovalURL, "approve")
}

func TestOverrideRegisterAndGet(t *testing.T) {
	k := agentKeyring(t)
	vaultAddr := contracts.MustAddress("0101010101010101010101010101010101010101010101010101010101010101")
	wantPath := "/overrides/" + vaultAddr.String() + "/7"

	srv := guardianStub(t, k.Address(), func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, wantPath, r.URL.Path)
		status := contracts.OverridePendingApproval
		if r.Method == http.MethodGet {
			status = contracts.OverrideApproved
		}
		_ = json.NewEncoder(w).Encode(guardian.OverrideView{
			Vault:       vaultAddr.String(),
			Nonce:       7,
			Status:      status,
			ApprovalURL: "https://guardian.example/approve/7",
		})
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL, k)
	ctx := context.Background()

	view, err := c.RegisterOverride(ctx, vaultAddr, 7, guardian.BlockedNotice{Vault: vaultAddr})
	require.NoError(t, err)
	assert.Equal(t, contracts.OverridePendingApproval, view.Status)

	view, err = c.GetOverride(ctx, vaultAddr, 7)
	require.NoError(t, err)
	assert.Equal(t, contracts.OverrideApproved, view.Status)
}

func TestGuardianFailuresAreCollaboratorKind(t *testing.T) {
	k := agentKeyring(t)

	srv := guardianStub(t, k.Address(), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL, k)
	_, err := c.NotifyBlocked(context.Background(), guardian.BlockedNotice{})
	require.Error(t, err)
	assert.Equal(t, errs.KindCollaborator, errs.KindOf(err))
	assert.False(t, errs.Retryable(err), "guardian failures never drive ledger retries")

	// Unreachable host is also collaborator-kinded.
	dead, err := guardian.NewClient("http://127.0.0.1:1",
		guardian.NewKeyringTokenSource(k, "guardian"),
		guardian.WithHTTPClient(resiliency.New("dead", resiliency.WithMaxRetries(0), resiliency.WithBaseDelay(time.Millisecond))),
	)
	require.NoError(t, err)
	_, err = dead.NotifyBlocked(context.Background(), guardian.BlockedNotice{})
	assert.Equal(t, errs.KindCollaborator, errs.KindOf(err))
}

func TestTokenSourceCachesUntilExpiry(t *testing.T) {
	k := agentKeyring(t)
	ts := guardian.NewKeyringTokenSource(k, "guardian")
	ctx := context.Background()

	t1, err := ts.Token(ctx)
	require.NoError(t, err)
	t2, err := ts.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, t1, t2, "fresh token is reused")

	token, err := jwt.Parse(t1, guardian.VerifyKeyFunc(), jwt.WithValidMethods([]string{"EdDSA"}))
	require.NoError(t, err)
	require.True(t, token.Valid)
	iss, err := token.Claims.GetIssuer()
	require.NoError(t, err)
	assert.Equal(t, k.Address().String(), iss)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := guardian.NewClient("not-a-url", nil)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}
