package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sigbridge/internal/domain"
	"sigbridge/internal/store"
)

func backends(t *testing.T) map[string]func(t *testing.T) domain.RecordStore {
	return map[string]func(t *testing.T) domain.RecordStore{
		"memory": func(t *testing.T) domain.RecordStore { return store.NewMemoryStore() },
		"file": func(t *testing.T) domain.RecordStore {
			s, err := store.NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) domain.RecordStore {
			s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestRecordStore_Contract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			_, ok, err := s.Get("sessions", "bob.1")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, s.Put("sessions", "bob.1", []byte("one")))
			require.NoError(t, s.Put("sessions", "bob.1", []byte("two")))
			require.NoError(t, s.Put("sessions", "carol.2", []byte("three")))
			require.NoError(t, s.Put("prekeys", "5", []byte("pk")))

			v, ok, err := s.Get("sessions", "bob.1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "two", string(v))

			all, err := s.List("sessions")
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Equal(t, "three", string(all["carol.2"]))

			require.NoError(t, s.Delete("sessions", "bob.1"))
			require.NoError(t, s.Delete("sessions", "missing"))
			_, ok, err = s.Get("sessions", "bob.1")
			require.NoError(t, err)
			require.False(t, ok)

			empty, err := s.List("nothing")
			require.NoError(t, err)
			require.Empty(t, empty)

			require.ErrorIs(t, s.Put("../escape", "k", nil), store.ErrBadNamespace)
		})
	}
}

func TestRecordStore_ReturnsCopies(t *testing.T) {
	s := store.NewMemoryStore()
	in := []byte("abc")
	require.NoError(t, s.Put("ns", "k", in))
	in[0] = 'X'
	out, _, err := s.Get("ns", "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(out))
	out[0] = 'Y'
	again, _, _ := s.Get("ns", "k")
	require.Equal(t, "abc", string(again))
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put("meta", "next_prekey_id", []byte("42")))
	require.NoError(t, s.Close())

	_, _, err = s.Get("meta", "next_prekey_id")
	require.ErrorIs(t, err, store.ErrClosed)

	info, err := os.Stat(filepath.Join(dir, "meta.json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	s2, err := store.NewFileStore(dir)
	require.NoError(t, err)
	v, ok, err := s2.Get("meta", "next_prekey_id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "42", string(v))
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "records.db")
	s, err := store.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("identities", "bob.1", []byte{0x05, 0x01}))
	require.NoError(t, s.Close())

	s2, err := store.OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()
	v, ok, err := s2.Get("identities", "bob.1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x05, 0x01}, v)
}

func TestOpen_Backends(t *testing.T) {
	s, err := store.Open(store.BackendMemory, "")
	require.NoError(t, err)
	require.IsType(t, &store.MemoryStore{}, s)

	s, err = store.Open(store.BackendFile, t.TempDir())
	require.NoError(t, err)
	require.IsType(t, &store.FileStore{}, s)

	_, err = store.Open("etcd", "")
	require.Error(t, err)
}
