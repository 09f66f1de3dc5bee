package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sigbridge/internal/domain"
	"sigbridge/internal/store"
)

// Cheap scrypt costs keep the tests fast.
var testParams = store.ScryptParams{N: 1 << 10, R: 8, P: 1}

func sampleIdentity() domain.LocalIdentity {
	return domain.LocalIdentity{
		KeyPair:        domain.IdentityKeyPair{Public: []byte{5, 1, 2}, Private: []byte{9, 9}},
		RegistrationID: 4242,
		CreatedUTC:     1700000000,
	}
}

func TestFileVault_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.enc")
	v, err := store.NewFileVault(path, "correct horse", testParams)
	require.NoError(t, err)

	_, ok, err := v.LoadIdentity()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, v.SaveIdentity(sampleIdentity()))
	got, ok, err := v.LoadIdentity()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sampleIdentity(), got)
}

func TestFileVault_WrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.enc")
	v, err := store.NewFileVault(path, "correct horse", testParams)
	require.NoError(t, err)
	require.NoError(t, v.SaveIdentity(sampleIdentity()))

	other, err := store.NewFileVault(path, "battery staple", testParams)
	require.NoError(t, err)
	_, _, err = other.LoadIdentity()
	require.ErrorIs(t, err, store.ErrWrongPassphrase)
}

func TestFileVault_WeakPassphrase(t *testing.T) {
	_, err := store.NewFileVault("x", "short", testParams)
	require.ErrorIs(t, err, store.ErrWeakPassphrase)
}

func TestMemoryVault(t *testing.T) {
	v := store.NewMemoryVault()
	_, ok, err := v.LoadIdentity()
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, v.SaveIdentity(sampleIdentity()))
	got, ok, err := v.LoadIdentity()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(4242), got.RegistrationID)
}
