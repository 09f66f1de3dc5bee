package protocol_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigbridge/internal/bridge"
	"sigbridge/internal/directory"
	"sigbridge/internal/domain"
	"sigbridge/internal/keys"
	"sigbridge/internal/protocol"
	"sigbridge/internal/session"
	"sigbridge/internal/store"
)

type party struct {
	addr domain.Address
	keys *keys.Manager
	svc  *protocol.Service
}

func newParty(t *testing.T, name string, dir domain.BundleSource) *party {
	t.Helper()
	rs := store.NewMemoryStore()
	km, err := keys.New(rs, store.NewMemoryVault(), keys.Options{})
	require.NoError(t, err)
	_, err = km.EnsureIdentity()
	require.NoError(t, err)
	_, err = km.EnsureSignedPreKey()
	require.NoError(t, err)

	sm, err := session.New(session.Config{
		Registry:     bridge.NewRegistry(),
		CallbackBase: 1 << 8,
		Keys:         km,
		Records:      rs,
	})
	require.NoError(t, err)

	addr := domain.NewAddress(name, 1)
	svc := protocol.New(km, sm, protocol.Options{Self: addr, Bundles: dir, MinPreKeys: 5, PreKeyBatch: 10})
	t.Cleanup(func() { _ = svc.Close() })
	if _, ok := dir.(domain.Directory); ok {
		require.NoError(t, svc.PublishBundle(context.Background()))
	}
	return &party{addr: addr, keys: km, svc: svc}
}

func send(t *testing.T, from, to *party, text string) domain.CipherMessage {
	t.Helper()
	msg, err := from.svc.Encrypt(context.Background(), to.addr, []byte(text))
	require.NoError(t, err)
	pt, err := to.svc.Decrypt(from.addr, msg)
	require.NoError(t, err)
	require.Equal(t, text, string(pt))
	return msg
}

func TestAliceBob(t *testing.T) {
	dir := directory.NewMemory()
	alice := newParty(t, "alice", dir)
	bob := newParty(t, "bob", dir)

	first := send(t, alice, bob, "hi bob")
	assert.Equal(t, domain.MessagePreKey, first.Type)

	reply := send(t, bob, alice, "hi alice")
	assert.Equal(t, domain.MessageWhisper, reply.Type)

	next := send(t, alice, bob, "how are you")
	assert.Equal(t, domain.MessageWhisper, next.Type)

	aliceFP, err := alice.svc.Fingerprint()
	require.NoError(t, err)
	bobFP, err := bob.svc.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, aliceFP, bobFP)
}

func TestHundredRoundTripsConsumeOnePrekey(t *testing.T) {
	dir := directory.NewMemory()
	alice := newParty(t, "alice", dir)
	bob := newParty(t, "bob", dir)
	before, err := bob.keys.AvailablePreKeys()
	require.NoError(t, err)

	for i := range 100 {
		send(t, alice, bob, fmt.Sprintf("ping %d", i))
		send(t, bob, alice, fmt.Sprintf("pong %d", i))
	}

	after, err := bob.keys.AvailablePreKeys()
	require.NoError(t, err)
	assert.Equal(t, before-1, after)
}

func TestForgedCiphertextLeavesState(t *testing.T) {
	dir := directory.NewMemory()
	alice := newParty(t, "alice", dir)
	bob := newParty(t, "bob", dir)
	send(t, alice, bob, "hello")
	send(t, bob, alice, "hello back")

	msg, err := alice.svc.Encrypt(context.Background(), bob.addr, []byte("real"))
	require.NoError(t, err)
	before, err := bob.svc.SessionStatus(alice.addr)
	require.NoError(t, err)

	forged := domain.CipherMessage{Type: msg.Type, Body: append([]byte(nil), msg.Body...)}
	forged.Body[len(forged.Body)/2] ^= 0x01
	_, err = bob.svc.Decrypt(alice.addr, forged)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRatchetFailure)
	var pe *domain.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.False(t, pe.Retryable())

	after, err := bob.svc.SessionStatus(alice.addr)
	require.NoError(t, err)
	assert.Equal(t, before.Epoch, after.Epoch)

	pt, err := bob.svc.Decrypt(alice.addr, msg)
	require.NoError(t, err)
	assert.Equal(t, "real", string(pt))
}

func TestReplayIsRejected(t *testing.T) {
	dir := directory.NewMemory()
	alice := newParty(t, "alice", dir)
	bob := newParty(t, "bob", dir)
	send(t, alice, bob, "one")
	send(t, bob, alice, "two")
	msg := send(t, alice, bob, "three")

	_, err := bob.svc.Decrypt(alice.addr, msg)
	assert.ErrorIs(t, err, domain.ErrRatchetFailure)
}

func TestConsumedPrekeyNeverReloaded(t *testing.T) {
	dir := directory.NewMemory()
	alice := newParty(t, "alice", dir)
	bob := newParty(t, "bob", dir)
	first := send(t, alice, bob, "hello")

	require.NoError(t, bob.svc.ResetSession(alice.addr))
	_, err := bob.svc.Decrypt(alice.addr, first)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPreKeyExhausted)
}

func TestRepublishDuringHandshake(t *testing.T) {
	dir := directory.NewMemory()
	alice := newParty(t, "alice", dir)
	bob := newParty(t, "bob", dir)
	carol := newParty(t, "carol", dir)
	ctx := context.Background()

	fromAlice, err := alice.svc.Encrypt(ctx, bob.addr, []byte("from alice"))
	require.NoError(t, err)
	require.NoError(t, bob.svc.PublishBundle(ctx))
	fromCarol, err := carol.svc.Encrypt(ctx, bob.addr, []byte("from carol"))
	require.NoError(t, err)

	pt, err := bob.svc.Decrypt(alice.addr, fromAlice)
	require.NoError(t, err)
	assert.Equal(t, "from alice", string(pt))
	pt, err = bob.svc.Decrypt(carol.addr, fromCarol)
	require.NoError(t, err)
	assert.Equal(t, "from carol", string(pt))
}

func TestEncryptWithoutDirectory(t *testing.T) {
	alice := newParty(t, "alice", nil)
	_, err := alice.svc.Encrypt(context.Background(), domain.NewAddress("bob", 1), []byte("x"))
	assert.ErrorIs(t, err, domain.ErrNoSession)

	err = alice.svc.InitiateSession(context.Background(), domain.NewAddress("bob", 1))
	assert.ErrorIs(t, err, domain.ErrNoSession)

	assert.Error(t, alice.svc.PublishBundle(context.Background()))
}

func TestExplicitBundle(t *testing.T) {
	alice := newParty(t, "alice", nil)
	bob := newParty(t, "bob", nil)
	_, err := bob.keys.GeneratePreKeys(0, 1)
	require.NoError(t, err)

	b, err := bob.svc.CurrentPreKeyBundle()
	require.NoError(t, err)
	require.NotNil(t, b.OneTimePreKey)
	require.NoError(t, alice.svc.EstablishSession(bob.addr, b))
	send(t, alice, bob, "direct")

	peers, err := bob.svc.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []domain.Address{alice.addr}, peers)
}

func TestTamperedBundleIsHandshakeFailure(t *testing.T) {
	alice := newParty(t, "alice", nil)
	bob := newParty(t, "bob", nil)
	b, err := bob.svc.CurrentPreKeyBundle()
	require.NoError(t, err)
	b.SignedPreKeySignature = append([]byte(nil), b.SignedPreKeySignature...)
	b.SignedPreKeySignature[3] ^= 0x10

	err = alice.svc.EstablishSession(bob.addr, b)
	assert.ErrorIs(t, err, domain.ErrHandshakeFailure)

	info, err := alice.svc.SessionStatus(bob.addr)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionAbsent, info.Status)
}

func TestChangedIdentityIsUntrusted(t *testing.T) {
	dir := directory.NewMemory()
	alice := newParty(t, "alice", dir)
	bob := newParty(t, "bob", dir)
	send(t, alice, bob, "hello")

	// A reinstalled alice has a new identity under the same address.
	impostor := newParty(t, "alice", dir)
	msg, err := impostor.svc.Encrypt(context.Background(), bob.addr, []byte("trust me"))
	require.NoError(t, err)
	_, err = bob.svc.Decrypt(alice.addr, msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUntrustedIdentity)
	assert.ErrorIs(t, err, domain.ErrHandshakeFailure)
}

func TestConcurrentEncryptSamePeer(t *testing.T) {
	dir := directory.NewMemory()
	alice := newParty(t, "alice", dir)
	bob := newParty(t, "bob", dir)
	before, err := dir.PreKeyCount(context.Background(), bob.addr)
	require.NoError(t, err)

	const n = 16
	msgs := make([]domain.CipherMessage, n)
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msgs[i], errs[i] = alice.svc.Encrypt(context.Background(), bob.addr, []byte(fmt.Sprintf("m%d", i)))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	after, err := dir.PreKeyCount(context.Background(), bob.addr)
	require.NoError(t, err)
	assert.Equal(t, before-1, after, "exactly one bundle fetched")

	for i, m := range msgs {
		pt, err := bob.svc.Decrypt(alice.addr, m)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("m%d", i), string(pt))
	}
}

func TestConcurrentEncryptDifferentPeers(t *testing.T) {
	dir := directory.NewMemory()
	alice := newParty(t, "alice", dir)
	peers := make([]*party, 6)
	for i := range peers {
		peers[i] = newParty(t, fmt.Sprintf("peer%d", i), dir)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(peers))
	for _, p := range peers {
		wg.Add(1)
		go func(p *party) {
			defer wg.Done()
			for j := range 5 {
				text := fmt.Sprintf("%s-%d", p.addr.Name, j)
				msg, err := alice.svc.Encrypt(context.Background(), p.addr, []byte(text))
				if err != nil {
					errs <- err
					return
				}
				pt, err := p.svc.Decrypt(alice.addr, msg)
				if err != nil {
					errs <- err
					return
				}
				if string(pt) != text {
					errs <- fmt.Errorf("got %q want %q", pt, text)
					return
				}
			}
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := alice.svc.Sessions()
	require.NoError(t, err)
	assert.Len(t, got, len(peers))
}
