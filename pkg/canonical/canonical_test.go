package canonical_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultguard-labs/vaultguard-go/pkg/canonical"
)

func TestJCSKeyOrder(t *testing.T) {
	a, err := canonical.JCS(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(a))
}

func TestHashDeterministic(t *testing.T) {
	type rec struct {
		Vault  string `json:"vault"`
		Amount uint64 `json:"amount"`
	}
	h1, err := canonical.Hash(rec{Vault: "v", Amount: 5})
	require.NoError(t, err)
	h2, err := canonical.Hash(rec{Vault: "v", Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := canonical.Hash(rec{Vault: "v", Amount: 6})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
