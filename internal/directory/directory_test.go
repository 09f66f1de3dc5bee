package directory_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigbridge/internal/directory"
	"sigbridge/internal/domain"
	"sigbridge/internal/keys"
	"sigbridge/internal/store"
)

func publishedKeys(t *testing.T, n int) domain.PublishedKeys {
	t.Helper()
	km, err := keys.New(store.NewMemoryStore(), store.NewMemoryVault(), keys.Options{})
	require.NoError(t, err)
	_, err = km.EnsureIdentity()
	require.NoError(t, err)
	_, err = km.EnsureSignedPreKey()
	require.NoError(t, err)
	_, err = km.GeneratePreKeys(0, n)
	require.NoError(t, err)
	pub, err := km.PublishedKeys(1)
	require.NoError(t, err)
	return pub
}

func newClient(t *testing.T, h http.Handler) *directory.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := directory.NewClient(srv.URL, directory.ClientOptions{
		Retries:    2,
		MinBackoff: time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestHTTP_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, directory.NewServer(directory.NewMemory(), nil))
	bob := domain.NewAddress("bob", 1)
	pub := publishedKeys(t, 2)

	require.NoError(t, c.Publish(ctx, bob, pub))

	n, err := c.PreKeyCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first, err := c.FetchBundle(ctx, bob)
	require.NoError(t, err)
	require.NotNil(t, first.OneTimePreKey)
	assert.Equal(t, pub.OneTimePreKeys[0].ID, first.OneTimePreKey.ID)
	assert.Equal(t, pub.IdentityKey, first.IdentityKey)
	assert.Equal(t, pub.SignedPreKeyID, first.SignedPreKeyID)

	second, err := c.FetchBundle(ctx, bob)
	require.NoError(t, err)
	require.NotNil(t, second.OneTimePreKey)
	assert.NotEqual(t, first.OneTimePreKey.ID, second.OneTimePreKey.ID)

	third, err := c.FetchBundle(ctx, bob)
	require.NoError(t, err)
	assert.Nil(t, third.OneTimePreKey)

	require.NoError(t, c.Delete(ctx, bob))
	_, err = c.FetchBundle(ctx, bob)
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestHTTP_RejectsBadSignature(t *testing.T) {
	c := newClient(t, directory.NewServer(directory.NewMemory(), nil))
	pub := publishedKeys(t, 1)
	pub.SignedPreKeySignature = append([]byte(nil), pub.SignedPreKeySignature...)
	pub.SignedPreKeySignature[0] ^= 0xFF

	err := c.Publish(context.Background(), domain.NewAddress("bob", 1), pub)
	assert.ErrorIs(t, err, directory.ErrInvalidBundle)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	inner := directory.NewServer(directory.NewMemory(), nil)
	flaky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		inner.ServeHTTP(w, r)
	})
	c := newClient(t, flaky)

	err := c.Publish(context.Background(), domain.NewAddress("bob", 1), publishedKeys(t, 1))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.PreKeyCount(context.Background(), domain.NewAddress("bob", 1))
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_FetchIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.FetchBundle(context.Background(), domain.NewAddress("bob", 1))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemory_OneTimeKeysHandedOutOnce(t *testing.T) {
	ctx := context.Background()
	m := directory.NewMemory()
	bob := domain.NewAddress("bob", 1)
	require.NoError(t, m.Publish(ctx, bob, publishedKeys(t, 3)))

	seen := map[uint32]bool{}
	for range 3 {
		b, err := m.FetchBundle(ctx, bob)
		require.NoError(t, err)
		require.NotNil(t, b.OneTimePreKey)
		assert.False(t, seen[b.OneTimePreKey.ID])
		seen[b.OneTimePreKey.ID] = true
	}
	n, err := m.PreKeyCount(ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemory_RepublishSkipsIssuedKeys(t *testing.T) {
	ctx := context.Background()
	m := directory.NewMemory()
	bob := domain.NewAddress("bob", 1)
	pub := publishedKeys(t, 3)
	require.NoError(t, m.Publish(ctx, bob, pub))

	b, err := m.FetchBundle(ctx, bob)
	require.NoError(t, err)
	require.NotNil(t, b.OneTimePreKey)
	issued := b.OneTimePreKey.ID

	// bob has not seen the handshake yet and uploads the same keys again
	require.NoError(t, m.Publish(ctx, bob, pub))
	n, err := m.PreKeyCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for range 2 {
		b, err := m.FetchBundle(ctx, bob)
		require.NoError(t, err)
		require.NotNil(t, b.OneTimePreKey)
		assert.NotEqual(t, issued, b.OneTimePreKey.ID)
	}

	// a new identity starts a fresh history
	require.NoError(t, m.Publish(ctx, bob, publishedKeys(t, 3)))
	n, err = m.PreKeyCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := directory.NewClient("not a url", directory.ClientOptions{})
	assert.Error(t, err)
}
