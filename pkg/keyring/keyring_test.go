package keyring_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultguard-labs/vaultguard-go/pkg/keyring"
)

func TestSignVerify(t *testing.T) {
	p, err := keyring.NewMemoryKeyProvider()
	require.NoError(t, err)
	k, err := keyring.New(p)
	require.NoError(t, err)

	msg := []byte("guarded transfer payload")
	sig, err := k.Sign(msg)
	require.NoError(t, err)
	assert.True(t, k.Verify(msg, sig))
	assert.False(t, k.Verify([]byte("tampered"), sig))
}

func TestAddressMatchesPublicKey(t *testing.T) {
	p, err := keyring.NewMemoryKeyProvider()
	require.NoError(t, err)
	k, err := keyring.New(p)
	require.NoError(t, err)

	addr := k.Address()
	assert.True(t, bytes.Equal(addr[:], k.PublicKey()))
}

func TestDeriveForRoleDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 32)
	p, err := keyring.NewMemoryKeyProviderFromSeed(seed)
	require.NoError(t, err)
	root, err := keyring.New(p)
	require.NoError(t, err)

	agent1, err := root.DeriveForRole("agent")
	require.NoError(t, err)
	agent2, err := root.DeriveForRole("agent")
	require.NoError(t, err)
	assert.Equal(t, agent1.Address(), agent2.Address())

	trading, err := root.DeriveForRole("agent:trading")
	require.NoError(t, err)
	assert.NotEqual(t, agent1.Address(), trading.Address())
	assert.NotEqual(t, root.Address(), agent1.Address())

	_, err = root.DeriveForRole("")
	require.Error(t, err)
}
