package directory

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"sigbridge/internal/domain"
	"sigbridge/internal/engine"
)

var (
	// ErrNotFound means nothing has been published for the address.
	ErrNotFound = errors.New("directory: no bundle published")
	// ErrInvalidBundle rejects uploads whose signed prekey does not verify.
	ErrInvalidBundle = errors.New("directory: invalid bundle")
)

// Memory is an in-memory directory. One-time keys are handed out lowest id
// first and each exactly once, even across republishes.
type Memory struct {
	mu      sync.Mutex
	entries map[domain.Address]domain.PublishedKeys
	issued  map[domain.Address]issuedKeys
}

// issuedKeys are the one-time key ids handed out under one identity key.
type issuedKeys struct {
	identity []byte
	ids      map[uint32]struct{}
}

// NewMemory returns an empty directory.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[domain.Address]domain.PublishedKeys),
		issued:  make(map[domain.Address]issuedKeys),
	}
}

// Publish replaces the entry for owner after checking the signed prekey.
// One-time keys already handed out under the same identity key are dropped
// from the upload, since the owner may still be waiting for the handshake
// that uses them. A new identity key starts a fresh history.
func (m *Memory) Publish(_ context.Context, owner domain.Address, keys domain.PublishedKeys) error {
	if owner.IsZero() {
		return fmt.Errorf("%w: empty owner", ErrInvalidBundle)
	}
	if err := engine.VerifySignedPreKey(keys.IdentityKey, keys.SignedPreKey, keys.SignedPreKeySignature); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	iss, ok := m.issued[owner]
	if !ok || !bytes.Equal(iss.identity, keys.IdentityKey) {
		iss = issuedKeys{identity: slices.Clone(keys.IdentityKey), ids: make(map[uint32]struct{})}
		m.issued[owner] = iss
	}
	otks := slices.DeleteFunc(slices.Clone(keys.OneTimePreKeys), func(k domain.OneTimePreKeyPublic) bool {
		_, gone := iss.ids[k.ID]
		return gone
	})
	slices.SortFunc(otks, func(a, b domain.OneTimePreKeyPublic) int { return cmp.Compare(a.ID, b.ID) })
	keys.OneTimePreKeys = otks
	m.entries[owner] = keys
	return nil
}

// FetchBundle returns owner's bundle with the next one-time key, if any
// remain, and removes that key from the directory.
func (m *Memory) FetchBundle(_ context.Context, owner domain.Address) (domain.PreKeyBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[owner]
	if !ok {
		return domain.PreKeyBundle{}, fmt.Errorf("%w: %s", ErrNotFound, owner)
	}
	var otk *domain.OneTimePreKeyPublic
	if len(e.OneTimePreKeys) > 0 {
		k := e.OneTimePreKeys[0]
		otk = &k
		e.OneTimePreKeys = e.OneTimePreKeys[1:]
		m.entries[owner] = e
		m.issued[owner].ids[k.ID] = struct{}{}
	}
	return e.Bundle(otk), nil
}

// PreKeyCount reports how many one-time keys owner has left.
func (m *Memory) PreKeyCount(_ context.Context, owner domain.Address) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[owner]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, owner)
	}
	return len(e.OneTimePreKeys), nil
}

// Delete removes owner's entry. Deleting an absent entry is not an error.
// The record of handed-out keys is kept until a new identity is published.
func (m *Memory) Delete(_ context.Context, owner domain.Address) error {
	m.mu.Lock()
	delete(m.entries, owner)
	m.mu.Unlock()
	return nil
}

var _ Backend = (*Memory)(nil)
