package amount_test

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultguard-labs/vaultguard-go/pkg/amount"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
)

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1", 1_000_000_000},
		{"0.3", 300_000_000},
		{"1.5", 1_500_000_000},
		{"0.000000001", 1},
		{"12.345678901", 12_345_678_901}, // truncates 10th decimal? none here
		{"0.9999999999", 999_999_999},    // truncated toward zero, never rounded up
		{"10", 10_000_000_000},
	}
	for _, tc := range cases {
		got, err := amount.ToBaseUnits(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestToBaseUnitsRejects(t *testing.T) {
	for _, in := range []string{
		"", "-1", "-0.5", "abc", "1.2.3", "1e9", "0", "0.0000000001",
		"18446744073709551616", // 2^64
		"99999999999999999999999",
	} {
		_, err := amount.ToBaseUnits(in)
		require.Error(t, err, in)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err), in)
	}
}

func TestFromBaseUnits(t *testing.T) {
	assert.Equal(t, "1", amount.FromBaseUnits(1_000_000_000))
	assert.Equal(t, "0.3", amount.FromBaseUnits(300_000_000))
	assert.Equal(t, "1.000000001", amount.FromBaseUnits(1_000_000_001))
	assert.Equal(t, "0", amount.FromBaseUnits(0))
}

func TestFeeNet(t *testing.T) {
	assert.Equal(t, uint64(25), amount.Fee(10_000, 25)) // 0.25%
	assert.Equal(t, uint64(9_975), amount.Net(10_000, 25))
	assert.Equal(t, uint64(0), amount.Fee(10_000, 0))
	assert.Equal(t, uint64(10_000), amount.Fee(10_000, 10_000)) // 100%
	assert.Equal(t, uint64(0), amount.Fee(3, 25))               // floor, never rounds up
}

func TestFeeNoOverflow(t *testing.T) {
	// The worst case must not panic or wrap.
	fee := amount.Fee(math.MaxUint64, 10_000)
	assert.Equal(t, uint64(math.MaxUint64), fee)
	assert.Equal(t, uint64(0), amount.Net(math.MaxUint64, 10_000))
}

func TestFeeProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 1000
	properties := gopter.NewProperties(params)

	properties.Property("fee + net == amount", prop.ForAll(
		func(base uint64, bp uint16) bool {
			if bp > amount.MaxBasisPoints {
				bp = bp % (amount.MaxBasisPoints + 1)
			}
			return amount.Fee(base, bp)+amount.Net(base, bp) == base
		},
		gen.UInt64(), gen.UInt16(),
	))

	properties.Property("fee monotonic non-decreasing in amount", prop.ForAll(
		func(a, b uint64, bp uint16) bool {
			bp = bp % (amount.MaxBasisPoints + 1)
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			return amount.Fee(lo, bp) <= amount.Fee(hi, bp)
		},
		gen.UInt64(), gen.UInt64(), gen.UInt16(),
	))

	properties.Property("fee never exceeds amount", prop.ForAll(
		func(base uint64, bp uint16) bool {
			bp = bp % (amount.MaxBasisPoints + 1)
			return amount.Fee(base, bp) <= base
		},
		gen.UInt64(), gen.UInt16(),
	))

	properties.TestingRun(t)
}

func TestValidateBasisPoints(t *testing.T) {
	require.NoError(t, amount.ValidateBasisPoints(0))
	require.NoError(t, amount.ValidateBasisPoints(10_000))
	require.Error(t, amount.ValidateBasisPoints(10_001))
}
