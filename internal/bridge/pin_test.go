package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sigbridge/internal/domain"
)

func TestDispatchUnpinsParams(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(KindStorePreKey, 3, func(*Params) error { return nil }))
	cc := NewCallContext(reg, IDSet{}, domain.Address{})
	before := pins.len()

	for i := 0; i < 10; i++ {
		Dispatch(&Params{Kind: KindStorePreKey, CallbackID: 3, Call: cc})
	}
	require.Equal(t, before, pins.len())

	cc.Release()
	require.Equal(t, before-1, pins.len())
	cc.Release()
	require.Equal(t, before-1, pins.len())
}

func TestPinTableNeverIssuesZero(t *testing.T) {
	tbl := &pinTable{items: map[uint64]any{}, next: ^uint64(0)}
	h := tbl.pin("x")
	require.Equal(t, uint64(1), h)
	v, ok := tbl.get(h)
	require.True(t, ok)
	require.Equal(t, "x", v)
}
