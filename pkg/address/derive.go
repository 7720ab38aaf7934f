// Package address derives deterministic account addresses from fixed
// domain tags and seed data. Derivation is pure: identical inputs always
// produce identical outputs, so derived addresses may be cached forever.
//
// Distinct tags form disjoint namespaces — the vault, vault-authority,
// override and fee-treasury spaces can never collide because the tag is
// hashed ahead of the seeds with a length prefix.
package address

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
)

// Domain tags. Each tag is its own derivation namespace.
const (
	TagVault          = "vault"
	TagVaultAuthority = "vault-authority"
	TagOverride       = "override"
	TagFeeTreasury    = "fee-treasury"
)

// programDomain separates this program's derived addresses from every
// other program hashing similar seeds.
const programDomain = "vaultguard:v1"

// Derive computes the derived address for a tag and seed components,
// searching bumps from 255 downward for the first valid candidate.
// A candidate is valid when its leading byte is nonzero, which reserves
// the zero-prefixed space for the ledger's native accounts; roughly one
// bump in 256 is skipped, so the search effectively never exhausts for
// well-formed seeds.
func Derive(tag string, seeds ...[]byte) (contracts.Address, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		candidate := hashCandidate(tag, seeds, uint8(bump))
		if candidate[0] != 0 {
			return candidate, uint8(bump), nil
		}
	}
	return contracts.ZeroAddress, 0, errs.Internal(nil, "derivation bump space exhausted for tag "+tag)
}

// DeriveWithBump recomputes the address for a known bump, verifying it is
// valid. Used to check addresses decoded from account data.
func DeriveWithBump(tag string, bump uint8, seeds ...[]byte) (contracts.Address, error) {
	candidate := hashCandidate(tag, seeds, bump)
	if candidate[0] == 0 {
		return contracts.ZeroAddress, errs.Validation("bump %d yields an invalid address for tag %q", bump, tag)
	}
	return candidate, nil
}

func hashCandidate(tag string, seeds [][]byte, bump uint8) contracts.Address {
	h := sha256.New()
	h.Write([]byte(programDomain))
	// Length-prefix every component so ("ab","c") never collides with ("a","bc").
	writeChunk(h, []byte(tag))
	for _, s := range seeds {
		writeChunk(h, s)
	}
	h.Write([]byte{bump})
	var a contracts.Address
	copy(a[:], h.Sum(nil))
	return a
}

func writeChunk(h interface{ Write([]byte) (int, error) }, b []byte) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(b)))
	h.Write(n[:])
	h.Write(b)
}

// Vault derives the vault account address for an authority and vault nonce.
// One authority owns one vault per nonce.
func Vault(authority contracts.Address, vaultNonce uint64) (contracts.Address, uint8, error) {
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], vaultNonce)
	return Derive(TagVault, authority[:], nonce[:])
}

// VaultAuthority derives the funds-holding address paired with a vault.
func VaultAuthority(vaultAddr contracts.Address) (contracts.Address, uint8, error) {
	return Derive(TagVaultAuthority, vaultAddr[:])
}

// Override derives the pending-override account address for a vault and
// override nonce. The nonce is consumed per request, so override
// addresses never collide.
func Override(vaultAddr contracts.Address, overrideNonce uint64) (contracts.Address, uint8, error) {
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], overrideNonce)
	return Derive(TagOverride, vaultAddr[:], nonce[:])
}

// FeeTreasury derives the protocol fee collection address.
func FeeTreasury() (contracts.Address, uint8, error) {
	return Derive(TagFeeTreasury)
}
