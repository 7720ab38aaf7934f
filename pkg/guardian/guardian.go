// Package guardian talks to the Guardian approval service, the human
// surface of the override flow. Everything here is advisory: a Guardian
// outage degrades the experience (no approval link to hand the human)
// but never blocks or fails the ledger-side state machine.
package guardian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/util/resiliency"
)

// BlockedNotice reports one policy-blocked transfer.
type BlockedNotice struct {
	Vault       contracts.Address     `json:"vault"`
	Destination contracts.Address     `json:"destination"`
	Amount      uint64                `json:"amount"`
	Reason      contracts.BlockReason `json:"reason"`
	// OverrideNonce is set when an override request was already placed
	// on-ledger for this block.
	OverrideNonce *uint64   `json:"overrideNonce,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// BlockedAck is the Guardian's response to a blocked-transfer notice.
type BlockedAck struct {
	// TransactionID is the Guardian's own tracking handle.
	TransactionID string `json:"transactionId"`
	// ApprovalURL is the link a human opens to review and approve.
	ApprovalURL string `json:"blinkUrl"`
}

// OverrideView is the Guardian's record of one override request.
type OverrideView struct {
	Vault       string                   `json:"vault"`
	Nonce       uint64                   `json:"nonce"`
	Status      contracts.OverrideStatus `json:"status"`
	ApprovalURL string                   `json:"blinkUrl"`
	ApprovedAt  *time.Time               `json:"approvedAt,omitempty"`
}

// TokenSource mints bearer tokens for Guardian authentication.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is the Guardian HTTP client. All failures come back as
// KindCollaborator so callers can log and move on.
type Client struct {
	baseURL *url.URL
	http    *resiliency.Client
	tokens  TokenSource
	limiter *rate.Limiter
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the resilient transport, used by tests.
func WithHTTPClient(h *resiliency.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit bounds outbound Guardian calls per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" {
		return nil, errs.Validation("invalid guardian base URL %q", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    resiliency.New("guardian"),
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NotifyBlocked reports a blocked transfer and returns the approval
// handle the Guardian created for it.
func (c *Client) NotifyBlocked(ctx context.Context, n BlockedNotice) (*BlockedAck, error) {
	var ack BlockedAck
	if err := c.do(ctx, http.MethodPost, "/transactions/blocked", n, &ack); err != nil {
		return nil, err
	}
	c.log.InfoContext(ctx, "guardian acknowledged blocked transfer",
		"vault", n.Vault.Short(), "reason", n.Reason, "guardian_tx", ack.TransactionID)
	return &ack, nil
}

// RegisterOverride tells the Guardian an override request landed
// on-ledger, so it can surface the approval link.
func (c *Client) RegisterOverride(ctx context.Context, vaultAddr contracts.Address, nonce uint64, n BlockedNotice) (*OverrideView, error) {
	path := fmt.Sprintf("/overrides/%s/%d", vaultAddr, nonce)
	var view OverrideView
	if err := c.do(ctx, http.MethodPost, path, n, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetOverride reads the Guardian's view of an override request.
func (c *Client) GetOverride(ctx context.Context, vaultAddr contracts.Address, nonce uint64) (*OverrideView, error) {
	path := fmt.Sprintf("/overrides/%s/%d", vaultAddr, nonce)
	var view OverrideView
	if err := c.do(ctx, http.MethodGet, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.Collaborator(err, "guardian rate limiter")
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errs.Collaborator(err, "encoding guardian request")
		}
	}

	u := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return errs.Collaborator(err, "building guardian request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return errs.Collaborator(err, "minting guardian token")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Collaborator(err, "guardian unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errs.Collaborator(
			fmt.Errorf("guardian returned %d: %s", resp.StatusCode, snippet),
			"guardian rejected request")
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errs.Collaborator(err, "decoding guardian response")
		}
	}
	return nil
}
