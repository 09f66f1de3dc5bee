package adapters

import (
	"log/slog"

	"sigbridge/internal/bridge"
)

// PreKeyStore serves one-time prekeys. Loads reserve the key for the calling
// handshake and removals are only staged on the call context; the session
// manager commits or releases them once it knows whether the session was
// persisted.
type PreKeyStore struct {
	keys PreKeys
	log  *slog.Logger
}

func (s *PreKeyStore) load(p *bridge.Params) error {
	if p.Call == nil {
		return ErrNoCallContext
	}
	rec, ok, err := s.keys.ReservePreKey(p.Call.ID, p.ID)
	if err != nil {
		return err
	}
	if ok {
		p.OutRecord = rec
	}
	return nil
}

func (s *PreKeyStore) store(p *bridge.Params) error {
	return s.keys.StorePreKey(p.ID, p.Record)
}

func (s *PreKeyStore) remove(p *bridge.Params) error {
	if p.Call == nil {
		return ErrNoCallContext
	}
	p.Call.StagePreKeyRemoval(p.ID)
	s.log.Debug("prekey removal staged", "prekey_id", p.ID, "call_id", p.Call.ID.String())
	return nil
}

// SignedPreKeyStore serves signed prekeys from the key manager.
type SignedPreKeyStore struct {
	keys SignedPreKeys
}

func (s *SignedPreKeyStore) load(p *bridge.Params) error {
	rec, ok, err := s.keys.LoadSignedPreKey(p.ID)
	if err != nil {
		return err
	}
	if ok {
		p.OutRecord = rec
	}
	return nil
}

func (s *SignedPreKeyStore) store(p *bridge.Params) error {
	return s.keys.StoreSignedPreKey(p.ID, p.Record)
}
