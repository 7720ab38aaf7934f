// Package contracts holds the shared domain types exchanged between the
// vaultguard client, the policy guard, the override lifecycle and the
// ledger transport. It has no dependencies on any other vaultguard package.
package contracts

import (
	"encoding/hex"
	"fmt"
)

// AddressLength is the byte length of a ledger account address.
const AddressLength = 32

// Address identifies an account on the ledger. Addresses are raw 32-byte
// values; the canonical text form is lowercase hex.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address. It is never a valid destination.
var ZeroAddress Address

// ParseAddress parses the canonical hex form of an address.
func ParseAddress(s string) (Address, error) {
	var a Address
	if len(s) != AddressLength*2 {
		return a, fmt.Errorf("address must be %d hex characters, got %d", AddressLength*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address encoding: %w", err)
	}
	copy(a[:], b)
	return a, nil
}

// MustAddress parses s and panics on failure. Test helper.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes copies b into an Address. Errors unless len(b) == 32.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// String returns the canonical lowercase hex form.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short returns an abbreviated form for logs.
func (a Address) Short() string {
	s := a.String()
	return s[:8] + ".." + s[len(s)-4:]
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// TxID is the ledger-assigned identifier of a submitted transaction,
// in its canonical text encoding.
type TxID string
