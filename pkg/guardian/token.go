package guardian

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"io"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/keyring"
)

// tokenLifetime is short on purpose: tokens identify the agent for one
// burst of Guardian calls, nothing longer-lived.
const tokenLifetime = time.Minute

// keyringSigner adapts a Keyring to crypto.Signer so jwt's EdDSA method
// can sign without the keyring exporting its private key.
type keyringSigner struct {
	k *keyring.Keyring
}

func (s keyringSigner) Public() crypto.PublicKey {
	return s.k.PublicKey()
}

func (s keyringSigner) Sign(_ io.Reader, digest []byte, _ crypto.SignerOpts) ([]byte, error) {
	return s.k.Sign(digest)
}

// KeyringTokenSource mints EdDSA JWTs signed by the agent's ledger key.
// The Guardian resolves the issuer claim to the agent's on-ledger
// address and verifies against the same public key the program trusts.
type KeyringTokenSource struct {
	keys     *keyring.Keyring
	audience string

	mu      sync.Mutex
	cached  string
	expires time.Time
	clock   func() time.Time
}

var _ TokenSource = (*KeyringTokenSource)(nil)

func NewKeyringTokenSource(k *keyring.Keyring, audience string) *KeyringTokenSource {
	return &KeyringTokenSource{keys: k, audience: audience, clock: time.Now}
}

// Token returns a cached token while it has at least 10s of life left.
func (t *KeyringTokenSource) Token(_ context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	if t.cached != "" && now.Add(10*time.Second).Before(t.expires) {
		return t.cached, nil
	}

	exp := now.Add(tokenLifetime)
	claims := jwt.RegisteredClaims{
		Issuer:    t.keys.Address().String(),
		Audience:  jwt.ClaimStrings{t.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(keyringSigner{k: t.keys})
	if err != nil {
		return "", errs.Internal(err, "signing guardian token")
	}
	t.cached = signed
	t.expires = exp
	return signed, nil
}

// VerifyKeyFunc is the matching verification side: it accepts only EdDSA
// tokens and resolves the issuer address to its public key. Used by the
// Guardian test server and any in-process verifier.
func VerifyKeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, errs.Validation("unexpected signing method %v", token.Header["alg"])
		}
		iss, err := token.Claims.GetIssuer()
		if err != nil {
			return nil, errs.Validation("token missing issuer")
		}
		addr, err := parseIssuer(iss)
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(addr[:]), nil
	}
}

func parseIssuer(iss string) (contracts.Address, error) {
	addr, err := contracts.ParseAddress(iss)
	if err != nil {
		return contracts.ZeroAddress, errs.Validation("token issuer is not a ledger address")
	}
	return addr, nil
}
