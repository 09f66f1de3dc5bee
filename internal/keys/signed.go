package keys

import (
	"errors"
	"fmt"
	"time"

	"sigbridge/internal/domain"
	"sigbridge/internal/engine"
)

// GenerateSignedPreKey creates and stores a signed prekey without promoting
// it. The signature is verified against the identity before anything is
// written.
func (m *Manager) GenerateSignedPreKey() (domain.SignedPreKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, md, err := m.generateSignedLocked()
	if err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	if err := saveMeta(m.records, md); err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	m.meta = md
	return rec, nil
}

// generateSignedLocked stores a new verified record and returns the meta that
// would account for it. The caller persists the meta.
func (m *Manager) generateSignedLocked() (domain.SignedPreKeyRecord, meta, error) {
	ident, err := m.loadIdentityLocked()
	if err != nil {
		return domain.SignedPreKeyRecord{}, meta{}, err
	}
	md := m.meta.clone()
	id := md.NextSignedPreKeyID
	if id == 0 {
		id = 1
	}
	now := m.now()
	raw, err := m.genSPK(id, ident.KeyPair.Public, ident.KeyPair.Private, now)
	if err != nil {
		return domain.SignedPreKeyRecord{}, meta{}, fmt.Errorf("keys: generate signed prekey: %w", err)
	}
	info, err := engine.ReadSignedPreKey(raw)
	if err != nil {
		return domain.SignedPreKeyRecord{}, meta{}, fmt.Errorf("keys: read signed prekey: %w", err)
	}
	if err := engine.VerifySignedPreKey(ident.KeyPair.Public, info.PublicKey, info.Signature); err != nil {
		return domain.SignedPreKeyRecord{}, meta{}, fmt.Errorf("%w: id %d", ErrBadSignature, id)
	}
	if err := m.records.Put(nsSignedPreKeys, idKey(id), raw); err != nil {
		return domain.SignedPreKeyRecord{}, meta{}, storeErr("store signed prekey", err)
	}
	md.NextSignedPreKeyID = id + 1
	return domain.SignedPreKeyRecord{ID: id, Record: raw, CreatedUTC: now.UTC().Unix()}, md, nil
}

// EnsureSignedPreKey promotes a fresh signed prekey when none is current.
func (m *Manager) EnsureSignedPreKey() (domain.SignedPreKeyRecord, error) {
	if rec, err := m.CurrentSignedPreKey(); err == nil {
		return rec, nil
	}
	return m.RotateSignedPreKey()
}

// RotateSignedPreKey generates a new signed prekey and makes it current. The
// old key is retired but stays loadable for the grace window. On any failure
// the current key is left in place.
func (m *Manager) RotateSignedPreKey() (domain.SignedPreKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, md, err := m.generateSignedLocked()
	if err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	prev := md.CurrentSignedPreKeyID
	if prev != 0 {
		md.Retired[prev] = m.now().UTC().UnixMilli()
	}
	md.CurrentSignedPreKeyID = rec.ID
	if err := saveMeta(m.records, md); err != nil {
		_ = m.records.Delete(nsSignedPreKeys, idKey(rec.ID))
		return domain.SignedPreKeyRecord{}, err
	}
	m.meta = md
	m.log.Info("signed prekey rotated", "spk_id", rec.ID, "retired_id", prev)
	return rec, nil
}

// CurrentSignedPreKey returns the promoted signed prekey.
func (m *Manager) CurrentSignedPreKey() (domain.SignedPreKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.meta.CurrentSignedPreKeyID
	if id == 0 {
		return domain.SignedPreKeyRecord{}, ErrNoSignedPreKey
	}
	raw, ok, err := m.records.Get(nsSignedPreKeys, idKey(id))
	if err != nil {
		return domain.SignedPreKeyRecord{}, storeErr("load signed prekey", err)
	}
	if !ok {
		return domain.SignedPreKeyRecord{}, fmt.Errorf("%w: record %d missing", ErrNoSignedPreKey, id)
	}
	info, err := engine.ReadSignedPreKey(raw)
	if err != nil {
		return domain.SignedPreKeyRecord{}, err
	}
	return domain.SignedPreKeyRecord{ID: id, Record: raw, CreatedUTC: info.CreatedAt.Unix()}, nil
}

// SignedPreKeyDue reports whether the current signed prekey is older than maxAge.
func (m *Manager) SignedPreKeyDue(maxAge time.Duration) (bool, error) {
	cur, err := m.CurrentSignedPreKey()
	if errors.Is(err, ErrNoSignedPreKey) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return m.now().Sub(time.Unix(cur.CreatedUTC, 0)) >= maxAge, nil
}

// LoadSignedPreKey returns the record for id if it is current or retired.
func (m *Manager) LoadSignedPreKey(id uint32) ([]byte, bool, error) {
	raw, ok, err := m.records.Get(nsSignedPreKeys, idKey(id))
	if err != nil {
		return nil, false, storeErr("load signed prekey", err)
	}
	return raw, ok, nil
}

// StoreSignedPreKey writes an externally produced signed prekey record.
func (m *Manager) StoreSignedPreKey(id uint32, record []byte) error {
	if _, err := engine.ReadSignedPreKey(record); err != nil {
		return err
	}
	if err := m.records.Put(nsSignedPreKeys, idKey(id), record); err != nil {
		return storeErr("store signed prekey", err)
	}
	return nil
}

// PruneSignedPreKeys deletes retired signed prekeys whose grace window has
// passed and returns how many were removed.
func (m *Manager) PruneSignedPreKeys() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.grace).UTC().UnixMilli()
	md := m.meta.clone()
	var expired []uint32
	for id, at := range md.Retired {
		if at <= cutoff {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	for _, id := range expired {
		if err := m.records.Delete(nsSignedPreKeys, idKey(id)); err != nil {
			return 0, storeErr("delete signed prekey", err)
		}
		delete(md.Retired, id)
	}
	if err := saveMeta(m.records, md); err != nil {
		return 0, err
	}
	m.meta = md
	m.log.Info("retired signed prekeys pruned", "count", len(expired))
	return len(expired), nil
}

// ---------- Bundle ----------

// CurrentBundle assembles the bundle a peer needs to start a session: the
// current signed prekey plus the lowest-id available one-time prekey, if any.
func (m *Manager) CurrentBundle(deviceID uint32) (domain.PreKeyBundle, error) {
	id, err := m.Identity()
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	spk, err := m.CurrentSignedPreKey()
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	info, err := engine.ReadSignedPreKey(spk.Record)
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	b := domain.PreKeyBundle{
		RegistrationID:        id.RegistrationID,
		DeviceID:              deviceID,
		IdentityKey:           id.KeyPair.Public,
		SignedPreKeyID:        spk.ID,
		SignedPreKey:          info.PublicKey,
		SignedPreKeySignature: info.Signature,
	}
	ids, err := m.availableIDs()
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	for _, pid := range ids {
		pub, ok, err := m.preKeyPublic(pid)
		if err != nil {
			return domain.PreKeyBundle{}, err
		}
		if ok {
			b.OneTimePreKey = &pub
			break
		}
	}
	return b, nil
}

// PublishedKeys is CurrentBundle with every available one-time prekey.
func (m *Manager) PublishedKeys(deviceID uint32) (domain.PublishedKeys, error) {
	b, err := m.CurrentBundle(deviceID)
	if err != nil {
		return domain.PublishedKeys{}, err
	}
	otks, err := m.PublishedPreKeys()
	if err != nil {
		return domain.PublishedKeys{}, err
	}
	return domain.PublishedKeys{
		RegistrationID:        b.RegistrationID,
		DeviceID:              b.DeviceID,
		IdentityKey:           b.IdentityKey,
		SignedPreKeyID:        b.SignedPreKeyID,
		SignedPreKey:          b.SignedPreKey,
		SignedPreKeySignature: b.SignedPreKeySignature,
		OneTimePreKeys:        otks,
	}, nil
}
