package adapters

import (
	"bytes"
	"crypto/subtle"
	"log/slog"

	"sigbridge/internal/bridge"
	"sigbridge/internal/domain"
)

const nsIdentities = "identities"

// IdentityStore serves the local identity and keeps remote identities under a
// trust-on-first-use policy: the first key seen for an address is trusted,
// any different key is not.
type IdentityStore struct {
	local   LocalIdentity
	records domain.RecordStore
	log     *slog.Logger
}

func (s *IdentityStore) keyPair(p *bridge.Params) error {
	id, err := s.local.Identity()
	if err != nil {
		return err
	}
	p.OutPublic = id.KeyPair.Public
	p.OutPrivate = id.KeyPair.Private
	return nil
}

func (s *IdentityStore) registrationID(p *bridge.Params) error {
	id, err := s.local.Identity()
	if err != nil {
		return err
	}
	p.OutRegistrationID = id.RegistrationID
	return nil
}

func (s *IdentityStore) save(p *bridge.Params) error {
	old, ok, err := s.records.Get(nsIdentities, p.Address.String())
	if err != nil {
		return storeFailure("load identity", err)
	}
	if ok && bytes.Equal(old, p.Key) {
		p.OutBool = false
		return nil
	}
	if err := s.records.Put(nsIdentities, p.Address.String(), p.Key); err != nil {
		return storeFailure("save identity", err)
	}
	p.OutBool = ok
	if ok {
		s.log.Warn("remote identity replaced", "peer", p.Address.String())
	}
	return nil
}

func (s *IdentityStore) get(p *bridge.Params) error {
	key, ok, err := s.records.Get(nsIdentities, p.Address.String())
	if err != nil {
		return storeFailure("load identity", err)
	}
	if ok {
		p.OutRecord = key
	}
	return nil
}

func (s *IdentityStore) isTrusted(p *bridge.Params) error {
	known, ok, err := s.records.Get(nsIdentities, p.Address.String())
	if err != nil {
		return storeFailure("load identity", err)
	}
	p.OutBool = !ok || subtle.ConstantTimeCompare(known, p.Key) == 1
	if !p.OutBool {
		s.log.Warn("untrusted identity", "peer", p.Address.String(), "direction", p.Direction.String())
	}
	return nil
}

// Forget drops the stored identity for peer so the next key is trusted again.
func (s *IdentityStore) Forget(peer domain.Address) error {
	if err := s.records.Delete(nsIdentities, peer.String()); err != nil {
		return storeFailure("forget identity", err)
	}
	return nil
}
