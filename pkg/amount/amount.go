// Package amount provides exact integer conversions between display units
// and base units, and basis-point fee arithmetic.
//
// All money math is integer math in base units. Conversions truncate toward
// zero — under-crediting is the safe direction for a spend-control system.
package amount

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
)

const (
	// Decimals is the number of base-unit digits per display unit.
	Decimals = 9
	// UnitsPerDisplay is 10^Decimals.
	UnitsPerDisplay uint64 = 1_000_000_000

	// BasisPointDenominator converts basis points to a fraction.
	BasisPointDenominator = 10_000
	// MaxBasisPoints is 100% expressed in basis points.
	MaxBasisPoints = 10_000

	// MaxBaseUnits is the largest representable amount.
	MaxBaseUnits = math.MaxUint64
)

// ToBaseUnits converts a decimal display-unit string (e.g. "1.5") into base
// units, truncating toward zero. Negative amounts, malformed input and
// values outside [1, 2^64-1] are rejected with a validation error — never
// silently clamped.
func ToBaseUnits(display string) (uint64, error) {
	s := strings.TrimSpace(display)
	if s == "" {
		return 0, errs.Validation("amount must not be empty")
	}
	if strings.HasPrefix(s, "-") {
		return 0, errs.Validation("amount must not be negative: %q", display)
	}
	if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, errs.Validation("malformed amount: %q", display)
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		// Truncation toward zero: extra precision is dropped, but only
		// if the dropped digits are digits at all.
		for _, c := range frac[Decimals:] {
			if c < '0' || c > '9' {
				return 0, errs.Validation("malformed amount: %q", display)
			}
		}
		frac = frac[:Decimals]
	}

	var total uint64
	for _, c := range whole {
		if c < '0' || c > '9' {
			return 0, errs.Validation("malformed amount: %q", display)
		}
		d := uint64(c - '0')
		if total > (math.MaxUint64-d)/10 {
			return 0, errs.Validation("amount overflows base units: %q", display)
		}
		total = total*10 + d
	}
	if total > math.MaxUint64/UnitsPerDisplay {
		return 0, errs.Validation("amount overflows base units: %q", display)
	}
	total *= UnitsPerDisplay

	scale := UnitsPerDisplay / 10
	for _, c := range frac {
		if c < '0' || c > '9' {
			return 0, errs.Validation("malformed amount: %q", display)
		}
		add := uint64(c-'0') * scale
		if total > math.MaxUint64-add {
			return 0, errs.Validation("amount overflows base units: %q", display)
		}
		total += add
		scale /= 10
	}

	if total == 0 {
		return 0, errs.Validation("amount must be at least 1 base unit: %q", display)
	}
	return total, nil
}

// FromBaseUnits renders base units as a display-unit decimal string with
// trailing zeros trimmed.
func FromBaseUnits(base uint64) string {
	whole := base / UnitsPerDisplay
	frac := base % UnitsPerDisplay
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	s := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
	return fmt.Sprintf("%d.%s", whole, s)
}

// ValidateTransfer rejects amounts a guarded transfer may never carry.
func ValidateTransfer(base uint64) error {
	if base == 0 {
		return errs.Validation("transfer amount must be at least 1 base unit")
	}
	return nil
}

// ValidateBasisPoints rejects fee rates outside [0, 10000].
func ValidateBasisPoints(bp uint16) error {
	if bp > MaxBasisPoints {
		return errs.Validation("fee basis points %d exceeds maximum %d", bp, MaxBasisPoints)
	}
	return nil
}

// Fee computes floor(amount * bp / 10000) without intermediate overflow.
func Fee(base uint64, bp uint16) uint64 {
	hi, lo := bits.Mul64(base, uint64(bp))
	fee, _ := bits.Div64(hi, lo, BasisPointDenominator)
	return fee
}

// Net is the amount credited to the destination after the protocol fee.
// Fee(a, bp) + Net(a, bp) == a for all valid inputs.
func Net(base uint64, bp uint16) uint64 {
	return base - Fee(base, bp)
}
