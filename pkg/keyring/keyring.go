// Package keyring manages the signing keys a vault client operates with:
// the owner authority key and agent sub-keys derived from it.
//
// Sub-keys are derived with HKDF-SHA256 from the root seed and a role
// label, so an owner can deterministically recreate the agent signer from
// the root key alone. Swap KeyProvider for an HSM or remote KMS in
// production; the interface is the only coupling.
package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
)

// KeyProvider abstracts the signing backend.
type KeyProvider interface {
	Sign(msg []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// MemoryKeyProvider is an in-memory ed25519 backend.
type MemoryKeyProvider struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewMemoryKeyProvider generates a fresh random keypair.
func NewMemoryKeyProvider() (*MemoryKeyProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

// NewMemoryKeyProviderFromSeed builds a provider from a 32-byte seed.
func NewMemoryKeyProviderFromSeed(seed []byte) (*MemoryKeyProvider, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &MemoryKeyProvider{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
}

func (m *MemoryKeyProvider) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(m.priv, msg), nil
}

func (m *MemoryKeyProvider) PublicKey() ed25519.PublicKey {
	return m.pub
}

// Keyring wraps a KeyProvider with address resolution and sub-key
// derivation.
type Keyring struct {
	provider KeyProvider
}

// New wraps an existing provider.
func New(p KeyProvider) (*Keyring, error) {
	if p == nil {
		return nil, fmt.Errorf("keyring requires a key provider")
	}
	return &Keyring{provider: p}, nil
}

// Sign signs raw bytes.
func (k *Keyring) Sign(msg []byte) ([]byte, error) {
	return k.provider.Sign(msg)
}

// PublicKey exposes the raw public key.
func (k *Keyring) PublicKey() ed25519.PublicKey {
	return k.provider.PublicKey()
}

// Address returns the ledger address for this key (the public key bytes).
func (k *Keyring) Address() contracts.Address {
	var a contracts.Address
	copy(a[:], k.provider.PublicKey())
	return a
}

// Verify checks a signature made by this keyring's key.
func (k *Keyring) Verify(msg, sig []byte) bool {
	return ed25519.Verify(k.provider.PublicKey(), msg, sig)
}

// DeriveForRole derives a deterministic sub-keyring for a role label,
// e.g. "agent" or "agent:trading". Requires an in-memory root key; a
// hardware-backed root cannot export its seed.
func (k *Keyring) DeriveForRole(role string) (*Keyring, error) {
	if role == "" {
		return nil, fmt.Errorf("role must not be empty")
	}
	mem, ok := k.provider.(*MemoryKeyProvider)
	if !ok {
		return nil, fmt.Errorf("role derivation requires an in-memory root key")
	}

	r := hkdf.New(sha256.New, mem.priv.Seed(), []byte("vaultguard-role-kdf"), []byte(role))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("hkdf derivation: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return New(&MemoryKeyProvider{pub: priv.Public().(ed25519.PublicKey), priv: priv})
}
