package adapters_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"sigbridge/internal/adapters"
	"sigbridge/internal/bridge"
	"sigbridge/internal/domain"
	"sigbridge/internal/engine"
	"sigbridge/internal/keys"
	"sigbridge/internal/store"
)

type memCache struct {
	mu   sync.Mutex
	recs map[domain.Address][]byte
	fail bool
}

func (c *memCache) LoadRecord(peer domain.Address) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.recs[peer]
	return r, ok, nil
}

func (c *memCache) StoreRecord(peer domain.Address, rec []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("disk full")
	}
	c.recs[peer] = rec
	return nil
}

type fixture struct {
	set   *adapters.Set
	reg   *bridge.Registry
	keys  *keys.Manager
	cache *memCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rs := store.NewMemoryStore()
	km, err := keys.New(rs, store.NewMemoryVault(), keys.Options{})
	require.NoError(t, err)
	_, err = km.EnsureIdentity()
	require.NoError(t, err)

	cache := &memCache{recs: map[domain.Address][]byte{}}
	reg := bridge.NewRegistry()
	set, err := adapters.Register(reg, 1, adapters.Deps{
		Sessions:      cache,
		Identity:      km,
		PreKeys:       km,
		SignedPreKeys: km,
		Records:       rs,
	})
	require.NoError(t, err)
	t.Cleanup(set.Close)
	return &fixture{set: set, reg: reg, keys: km, cache: cache}
}

func (f *fixture) stores(t *testing.T) (engine.Stores, *bridge.CallContext) {
	t.Helper()
	cc := bridge.NewCallContext(f.reg, f.set.IDs(), domain.NewAddress("bob", 1))
	t.Cleanup(cc.Release)
	return bridge.Stores(cc), cc
}

var bob = engine.Address{Name: "bob", DeviceID: 1}

func TestRegister_FillsRegistry(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, len(bridge.Kinds(bridge.FamilyInvalid)), f.reg.Len())
	f.set.Close()
	require.Zero(t, f.reg.Len())
}

func TestRegister_RejectsZeroBaseAndMissingDeps(t *testing.T) {
	_, err := adapters.Register(bridge.NewRegistry(), 0, adapters.Deps{})
	require.Error(t, err)
	_, err = adapters.Register(bridge.NewRegistry(), 3, adapters.Deps{})
	require.Error(t, err)
}

func TestSessionAdapter(t *testing.T) {
	f := newFixture(t)
	s, _ := f.stores(t)

	var rec []byte
	require.Equal(t, engine.StatusOK, s.Session.LoadSession(s.Session.Ctx, &rec, bob))
	require.Nil(t, rec)

	require.Equal(t, engine.StatusOK, s.Session.StoreSession(s.Session.Ctx, bob, []byte("state")))
	require.Equal(t, engine.StatusOK, s.Session.LoadSession(s.Session.Ctx, &rec, bob))
	require.Equal(t, "state", string(rec))

	f.cache.fail = true
	require.Equal(t, engine.StatusStoreFailure, s.Session.StoreSession(s.Session.Ctx, bob, []byte("x")))
}

func TestIdentityAdapter_TrustOnFirstUse(t *testing.T) {
	f := newFixture(t)
	s, _ := f.stores(t)
	id := s.Identity

	var pub, priv []byte
	require.Equal(t, engine.StatusOK, id.GetIdentityKeyPair(id.Ctx, &pub, &priv))
	local, err := f.keys.Identity()
	require.NoError(t, err)
	require.Equal(t, local.KeyPair.Public, pub)

	var reg uint32
	require.Equal(t, engine.StatusOK, id.GetLocalRegistrationID(id.Ctx, &reg))
	require.Equal(t, local.RegistrationID, reg)

	k1 := []byte("key-one")
	k2 := []byte("key-two")
	var trusted, replaced bool

	require.Equal(t, engine.StatusOK, id.IsTrustedIdentity(id.Ctx, bob, k1, engine.DirectionSending, &trusted))
	require.True(t, trusted)

	require.Equal(t, engine.StatusOK, id.SaveIdentity(id.Ctx, bob, k1, &replaced))
	require.False(t, replaced)
	require.Equal(t, engine.StatusOK, id.SaveIdentity(id.Ctx, bob, k1, &replaced))
	require.False(t, replaced)

	require.Equal(t, engine.StatusOK, id.IsTrustedIdentity(id.Ctx, bob, k2, engine.DirectionReceiving, &trusted))
	require.False(t, trusted)

	var got []byte
	require.Equal(t, engine.StatusOK, id.GetIdentity(id.Ctx, &got, bob))
	require.Equal(t, k1, got)

	require.Equal(t, engine.StatusOK, id.SaveIdentity(id.Ctx, bob, k2, &replaced))
	require.True(t, replaced)

	require.NoError(t, f.set.Identity.Forget(domain.NewAddress("bob", 1)))
	require.Equal(t, engine.StatusOK, id.GetIdentity(id.Ctx, &got, bob))
	require.Nil(t, got)
}

func TestPreKeyAdapter_ReservesAndStages(t *testing.T) {
	f := newFixture(t)
	_, err := f.keys.GeneratePreKeys(0, 2)
	require.NoError(t, err)

	s, cc := f.stores(t)
	var rec []byte
	require.Equal(t, engine.StatusOK, s.PreKey.LoadPreKey(s.PreKey.Ctx, &rec, 1))
	require.NotNil(t, rec)

	// A concurrent handshake cannot load the same key.
	other, _ := f.stores(t)
	var rec2 []byte
	require.Equal(t, engine.StatusOK, other.PreKey.LoadPreKey(other.PreKey.Ctx, &rec2, 1))
	require.Nil(t, rec2)

	// Removal is staged, not applied.
	require.Equal(t, engine.StatusOK, s.PreKey.RemovePreKey(s.PreKey.Ctx, 1))
	require.Equal(t, []uint32{1}, cc.RemovedPreKeys())
	require.False(t, f.keys.IsConsumed(1))

	require.NoError(t, f.keys.CommitPreKeys(cc.ID, cc.RemovedPreKeys()))
	require.True(t, f.keys.IsConsumed(1))

	// Unknown ids load as nil rather than failing.
	require.Equal(t, engine.StatusOK, s.PreKey.LoadPreKey(s.PreKey.Ctx, &rec, 99))
	require.Nil(t, rec)
}

func TestSignedPreKeyAdapter(t *testing.T) {
	f := newFixture(t)
	spk, err := f.keys.EnsureSignedPreKey()
	require.NoError(t, err)

	s, _ := f.stores(t)
	var rec []byte
	require.Equal(t, engine.StatusOK, s.SignedPreKey.LoadSignedPreKey(s.SignedPreKey.Ctx, &rec, spk.ID))
	require.Equal(t, spk.Record, rec)

	require.Equal(t, engine.StatusOK, s.SignedPreKey.StoreSignedPreKey(s.SignedPreKey.Ctx, 50, spk.Record))
	require.Equal(t, engine.StatusError, s.SignedPreKey.StoreSignedPreKey(s.SignedPreKey.Ctx, 51, []byte("junk")))
}

func TestClosedSetFailsLoudly(t *testing.T) {
	f := newFixture(t)
	s, _ := f.stores(t)
	f.set.Close()

	var rec []byte
	require.Equal(t, engine.StatusUnknownCallback, s.Session.LoadSession(s.Session.Ctx, &rec, bob))
}
