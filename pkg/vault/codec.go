package vault

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/amount"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
)

// AccountSize is the fixed byte size of a vault account:
// discriminator(8) + authority(32) + agentSigner(32) + dailyLimit(8) +
// spentToday(8) + lastReset(8) + whitelist(32*20) + whitelistCount(1) +
// tier(1) + feeBasisPoints(2) + name(50) + nameLen(1) + paused(1) +
// overrideNonce(8) + vaultNonce(8) + bump(1).
const AccountSize = 8 + 32 + 32 + 8 + 8 + 8 + 32*WhitelistCapacity + 1 + 1 + 2 + NameCapacity + 1 + 1 + 8 + 8 + 1

// Discriminator identifies vault accounts. First 8 bytes of
// sha256("account:VaultState"), matching the on-ledger program.
var Discriminator = func() [8]byte {
	sum := sha256.Sum256([]byte("account:VaultState"))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}()

// Encode serializes the state into the fixed little-endian account layout.
func Encode(s *State) ([]byte, error) {
	if err := ValidateName(s.Name); err != nil {
		return nil, err
	}
	if int(s.WhitelistCount) > WhitelistCapacity {
		return nil, errs.Validation("whitelist count %d exceeds capacity", s.WhitelistCount)
	}

	buf := make([]byte, AccountSize)
	off := 0
	copy(buf[off:], Discriminator[:])
	off += 8
	copy(buf[off:], s.Authority[:])
	off += 32
	copy(buf[off:], s.AgentSigner[:])
	off += 32
	binary.LittleEndian.PutUint64(buf[off:], s.DailyLimit)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], s.SpentToday)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(s.LastResetAt.Unix()))
	off += 8
	for i := 0; i < WhitelistCapacity; i++ {
		copy(buf[off:], s.Whitelist[i][:])
		off += 32
	}
	buf[off] = s.WhitelistCount
	off++
	buf[off] = s.Tier
	off++
	binary.LittleEndian.PutUint16(buf[off:], s.FeeBasisPoints)
	off += 2
	copy(buf[off:off+NameCapacity], s.Name)
	off += NameCapacity
	buf[off] = uint8(len(s.Name))
	off++
	if s.Paused {
		buf[off] = 1
	}
	off++
	binary.LittleEndian.PutUint64(buf[off:], s.OverrideNonce)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], s.VaultNonce)
	off += 8
	buf[off] = s.Bump

	return buf, nil
}

// Decode parses a vault account. Rejects wrong sizes and foreign
// discriminators before reading any field.
func Decode(data []byte) (*State, error) {
	if len(data) != AccountSize {
		return nil, errs.Validation("vault account must be %d bytes, got %d", AccountSize, len(data))
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	if disc != Discriminator {
		return nil, errs.Validation("not a vault account (discriminator mismatch)")
	}

	s := &State{}
	off := 8
	copy(s.Authority[:], data[off:])
	off += 32
	copy(s.AgentSigner[:], data[off:])
	off += 32
	s.DailyLimit = binary.LittleEndian.Uint64(data[off:])
	off += 8
	s.SpentToday = binary.LittleEndian.Uint64(data[off:])
	off += 8
	s.LastResetAt = time.Unix(int64(binary.LittleEndian.Uint64(data[off:])), 0).UTC()
	off += 8
	for i := 0; i < WhitelistCapacity; i++ {
		copy(s.Whitelist[i][:], data[off:])
		off += 32
	}
	s.WhitelistCount = data[off]
	off++
	if int(s.WhitelistCount) > WhitelistCapacity {
		return nil, errs.Validation("corrupt account: whitelist count %d", s.WhitelistCount)
	}
	s.Tier = data[off]
	off++
	s.FeeBasisPoints = binary.LittleEndian.Uint16(data[off:])
	off += 2
	if s.FeeBasisPoints > amount.MaxBasisPoints {
		return nil, errs.Validation("corrupt account: fee basis points %d", s.FeeBasisPoints)
	}
	nameBytes := data[off : off+NameCapacity]
	off += NameCapacity
	nameLen := data[off]
	off++
	if int(nameLen) > NameCapacity {
		return nil, errs.Validation("corrupt account: name length %d", nameLen)
	}
	s.Name = string(nameBytes[:nameLen])
	s.Paused = data[off] != 0
	off++
	s.OverrideNonce = binary.LittleEndian.Uint64(data[off:])
	off += 8
	s.VaultNonce = binary.LittleEndian.Uint64(data[off:])
	off += 8
	s.Bump = data[off]

	return s, nil
}

// ZeroedWhitelistTail reports whether all slots past WhitelistCount are
// zero. Decode tolerates dirty tails, but the program always writes them
// zeroed; useful as a corruption probe in tests.
func (s *State) ZeroedWhitelistTail() bool {
	for i := s.WhitelistCount; int(i) < WhitelistCapacity; i++ {
		if !s.Whitelist[i].IsZero() {
			return false
		}
	}
	return true
}

// IsVaultAccount reports whether data carries the vault discriminator.
func IsVaultAccount(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	return disc == Discriminator
}
