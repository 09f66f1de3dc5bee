package bridge_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigbridge/internal/bridge"
	"sigbridge/internal/domain"
	"sigbridge/internal/engine"
)

func TestRegistry_RegisterResolveReplace(t *testing.T) {
	reg := bridge.NewRegistry()
	first := func(p *bridge.Params) error { p.OutRecord = []byte("first"); return nil }
	second := func(p *bridge.Params) error { p.OutRecord = []byte("second"); return nil }

	require.NoError(t, reg.Register(bridge.KindLoadSession, 17, first))
	require.NoError(t, reg.Register(bridge.KindLoadSession, 17, second))
	require.Equal(t, 1, reg.Len())

	r, err := reg.Resolve(17)
	require.NoError(t, err)
	require.Equal(t, bridge.KindLoadSession, r.Kind)
	p := &bridge.Params{}
	require.NoError(t, r.Handler(p))
	require.Equal(t, "second", string(p.OutRecord))

	reg.Unregister(17)
	_, err = reg.Resolve(17)
	require.ErrorIs(t, err, domain.ErrUnknownCallback)
	var unknown *bridge.UnknownCallbackError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, uint64(17), unknown.ID)
}

func TestRegistry_RejectsBadRegistrations(t *testing.T) {
	reg := bridge.NewRegistry()
	noop := func(*bridge.Params) error { return nil }
	require.ErrorIs(t, reg.Register(bridge.KindLoadSession, 1, nil), bridge.ErrNilHandler)
	require.ErrorIs(t, reg.Register(bridge.KindLoadSession, 0, noop), bridge.ErrZeroID)
	require.ErrorIs(t, reg.Register(bridge.Kind(0), 1, noop), bridge.ErrBadKind)
	require.Zero(t, reg.Len())
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	reg := bridge.NewRegistry()
	var wg sync.WaitGroup
	for i := 1; i <= 32; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			h := func(p *bridge.Params) error { p.OutRegistrationID = uint32(id); return nil }
			assert.NoError(t, reg.Register(bridge.KindGetLocalRegistrationID, id, h))
			r, err := reg.Resolve(id)
			if assert.NoError(t, err) {
				p := &bridge.Params{}
				assert.NoError(t, r.Handler(p))
				assert.Equal(t, uint32(id), p.OutRegistrationID)
			}
		}(uint64(i))
	}
	wg.Wait()
	require.Equal(t, 32, reg.Len())
}

func TestDispatch_Statuses(t *testing.T) {
	reg := bridge.NewRegistry()
	ids := bridge.NewIDSet(1)
	cc := bridge.NewCallContext(reg, ids, domain.NewAddress("bob", 1))
	defer cc.Release()

	params := func(k bridge.Kind) *bridge.Params {
		return &bridge.Params{Kind: k, CallbackID: ids.ID(k), Call: cc}
	}

	// Unregistered id: non-zero status, no crash.
	require.Equal(t, engine.StatusUnknownCallback, bridge.Dispatch(params(bridge.KindLoadSession)))
	require.ErrorIs(t, cc.Err(), domain.ErrUnknownCallback)

	require.NoError(t, reg.Register(bridge.KindLoadSession, ids.ID(bridge.KindLoadSession), func(p *bridge.Params) error {
		p.OutRecord = []byte("rec")
		return nil
	}))
	p := params(bridge.KindLoadSession)
	require.Equal(t, engine.StatusOK, bridge.Dispatch(p))
	require.Equal(t, "rec", string(p.OutRecord))

	require.NoError(t, reg.Register(bridge.KindStoreSession, ids.ID(bridge.KindStoreSession), func(*bridge.Params) error {
		return fmt.Errorf("disk full: %w", domain.ErrStoreFailure)
	}))
	require.Equal(t, engine.StatusStoreFailure, bridge.Dispatch(params(bridge.KindStoreSession)))
	require.ErrorIs(t, cc.Err(), domain.ErrStoreFailure)

	require.NoError(t, reg.Register(bridge.KindRemovePreKey, ids.ID(bridge.KindRemovePreKey), func(*bridge.Params) error {
		return errors.New("boom")
	}))
	require.Equal(t, engine.StatusError, bridge.Dispatch(params(bridge.KindRemovePreKey)))

	require.NoError(t, reg.Register(bridge.KindLoadPreKey, ids.ID(bridge.KindLoadPreKey), func(*bridge.Params) error {
		panic("handler bug")
	}))
	require.Equal(t, engine.StatusPanic, bridge.Dispatch(params(bridge.KindLoadPreKey)))
	var pe *bridge.PanicError
	require.ErrorAs(t, cc.Err(), &pe)
	require.Equal(t, "handler bug", pe.Value)
}

func TestDispatch_KindMismatchIsUnknown(t *testing.T) {
	reg := bridge.NewRegistry()
	require.NoError(t, reg.Register(bridge.KindStoreSession, 99, func(*bridge.Params) error { return nil }))
	cc := bridge.NewCallContext(reg, bridge.IDSet{}, domain.Address{})
	defer cc.Release()

	p := &bridge.Params{Kind: bridge.KindLoadSession, CallbackID: 99, Call: cc}
	require.Equal(t, engine.StatusUnknownCallback, bridge.Dispatch(p))
}

func TestThunks_RejectUnknownHandle(t *testing.T) {
	require.Equal(t, int32(engine.StatusInvalidArgument), bridge.DispatchSession(0))
	require.Equal(t, int32(engine.StatusInvalidArgument), bridge.DispatchIdentity(1<<62))
	require.Equal(t, engine.StatusInvalidArgument, bridge.Dispatch(&bridge.Params{}))
}

func TestIDSet_DistinctPerBaseAndKind(t *testing.T) {
	seen := map[uint64]bool{}
	for _, base := range []uint64{1, 2, 3} {
		set := bridge.NewIDSet(base)
		for _, k := range bridge.Kinds(bridge.FamilyInvalid) {
			id := set.ID(k)
			require.NotZero(t, id)
			require.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
	}
	require.Len(t, bridge.Kinds(bridge.FamilyIdentity), 5)
	require.Len(t, bridge.Kinds(bridge.FamilyPreKey), 3)
}

// fakeStores registers one trivial handler per kind.
func fakeStores(t *testing.T, reg *bridge.Registry, ids bridge.IDSet) map[bridge.Kind]*bridge.Params {
	t.Helper()
	seen := map[bridge.Kind]*bridge.Params{}
	var mu sync.Mutex
	for _, k := range bridge.Kinds(bridge.FamilyInvalid) {
		require.NoError(t, reg.Register(k, ids.ID(k), func(p *bridge.Params) error {
			mu.Lock()
			seen[p.Kind] = p
			mu.Unlock()
			switch p.Kind {
			case bridge.KindLoadSession, bridge.KindLoadPreKey, bridge.KindLoadSignedPreKey, bridge.KindGetIdentity:
				p.OutRecord = []byte(p.Kind.String())
			case bridge.KindGetIdentityKeyPair:
				p.OutPublic, p.OutPrivate = []byte("pub"), []byte("priv")
			case bridge.KindGetLocalRegistrationID:
				p.OutRegistrationID = 1234
			case bridge.KindSaveIdentity, bridge.KindIsTrustedIdentity:
				p.OutBool = true
			}
			return nil
		}))
	}
	return seen
}

func TestStores_ShimsPackAndUnpack(t *testing.T) {
	reg := bridge.NewRegistry()
	ids := bridge.NewIDSet(5)
	seen := fakeStores(t, reg, ids)

	peer := domain.NewAddress("carol", 2)
	cc := bridge.NewCallContext(reg, ids, peer)
	defer cc.Release()
	s := bridge.Stores(cc)
	addr := engine.Address{Name: "carol", DeviceID: 2}

	var rec []byte
	require.Equal(t, engine.StatusOK, s.Session.LoadSession(s.Session.Ctx, &rec, addr))
	require.Equal(t, "load_session", string(rec))
	require.Equal(t, peer, seen[bridge.KindLoadSession].Address)
	require.Same(t, cc, seen[bridge.KindLoadSession].Call)

	require.Equal(t, engine.StatusOK, s.Session.StoreSession(s.Session.Ctx, addr, []byte("new")))
	require.Equal(t, "new", string(seen[bridge.KindStoreSession].Record))

	var pub, priv []byte
	require.Equal(t, engine.StatusOK, s.Identity.GetIdentityKeyPair(s.Identity.Ctx, &pub, &priv))
	require.Equal(t, "pub", string(pub))
	require.Equal(t, "priv", string(priv))

	var reg32 uint32
	require.Equal(t, engine.StatusOK, s.Identity.GetLocalRegistrationID(s.Identity.Ctx, &reg32))
	require.Equal(t, uint32(1234), reg32)

	var trusted bool
	require.Equal(t, engine.StatusOK, s.Identity.IsTrustedIdentity(s.Identity.Ctx, addr, []byte("k"), engine.DirectionReceiving, &trusted))
	require.True(t, trusted)
	require.Equal(t, domain.DirectionReceiving, seen[bridge.KindIsTrustedIdentity].Direction)

	require.Equal(t, engine.StatusOK, s.PreKey.LoadPreKey(s.PreKey.Ctx, &rec, 9))
	require.Equal(t, uint32(9), seen[bridge.KindLoadPreKey].ID)
	require.Equal(t, engine.StatusOK, s.PreKey.RemovePreKey(s.PreKey.Ctx, 9))
	require.Equal(t, engine.StatusOK, s.SignedPreKey.LoadSignedPreKey(s.SignedPreKey.Ctx, &rec, 3))
	require.Equal(t, "load_signed_pre_key", string(rec))
}

func TestStores_ReleasedContextFails(t *testing.T) {
	reg := bridge.NewRegistry()
	ids := bridge.NewIDSet(6)
	fakeStores(t, reg, ids)

	cc := bridge.NewCallContext(reg, ids, domain.Address{})
	s := bridge.Stores(cc)
	cc.Release()

	var rec []byte
	require.Equal(t, engine.StatusInvalidArgument, s.Session.LoadSession(s.Session.Ctx, &rec, engine.Address{}))
	require.Nil(t, rec)
}

func TestStores_UnregisteredAfterCloseIsUnknown(t *testing.T) {
	reg := bridge.NewRegistry()
	ids := bridge.NewIDSet(7)
	fakeStores(t, reg, ids)
	for _, k := range bridge.Kinds(bridge.FamilyInvalid) {
		reg.Unregister(ids.ID(k))
	}

	cc := bridge.NewCallContext(reg, ids, domain.Address{})
	defer cc.Release()
	s := bridge.Stores(cc)
	var rec []byte
	require.Equal(t, engine.StatusUnknownCallback, s.Session.LoadSession(s.Session.Ctx, &rec, engine.Address{}))
}

func TestCallContext_StagesPreKeysOnce(t *testing.T) {
	cc := bridge.NewCallContext(bridge.NewRegistry(), bridge.IDSet{}, domain.Address{})
	defer cc.Release()
	cc.StagePreKeyRemoval(4)
	cc.StagePreKeyRemoval(4)
	cc.StagePreKeyRemoval(5)
	require.Equal(t, []uint32{4, 5}, cc.RemovedPreKeys())
}
