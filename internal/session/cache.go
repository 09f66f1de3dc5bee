package session

import (
	"encoding/json"
	"fmt"

	"sigbridge/internal/domain"
)

const nsSessions = "sessions"

// persisted is the document stored per peer. Record and metadata share one
// write so they can never disagree.
type persisted struct {
	Info   domain.SessionInfo `json:"info"`
	Record []byte             `json:"record"`
}

type entry struct {
	info   domain.SessionInfo
	record []byte
}

// LoadRecord returns the cached or durable record for peer.
func (m *Manager) LoadRecord(peer domain.Address) ([]byte, bool, error) {
	e, err := m.lookup(peer)
	if err != nil || e == nil {
		return nil, false, err
	}
	return e.record, true, nil
}

// StoreRecord writes record for peer through to the record store and then
// updates the cache. On a write failure the cache keeps its previous value.
func (m *Manager) StoreRecord(peer domain.Address, record []byte) error {
	prev, err := m.lookup(peer)
	if err != nil {
		return err
	}
	now := m.now().UTC()
	info := domain.SessionInfo{Peer: peer, Status: domain.SessionEstablished, CreatedAt: now}
	if prev != nil {
		info.CreatedAt = prev.info.CreatedAt
		info.Epoch = prev.info.Epoch
	}
	info.Epoch++
	info.UpdatedAt = now

	raw, err := json.Marshal(persisted{Info: info, Record: record})
	if err != nil {
		return err
	}
	if err := m.records.Put(nsSessions, peer.String(), raw); err != nil {
		return fmt.Errorf("%w: write session %s: %w", domain.ErrStoreFailure, peer, err)
	}

	m.cacheMu.Lock()
	m.cache[peer] = &entry{info: info, record: append([]byte(nil), record...)}
	m.cacheMu.Unlock()
	return nil
}

func (m *Manager) lookup(peer domain.Address) (*entry, error) {
	m.cacheMu.RLock()
	e, ok := m.cache[peer]
	m.cacheMu.RUnlock()
	if ok {
		return e, nil
	}

	raw, found, err := m.records.Get(nsSessions, peer.String())
	if err != nil {
		return nil, fmt.Errorf("%w: read session %s: %w", domain.ErrStoreFailure, peer, err)
	}
	if !found {
		return nil, nil
	}
	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", peer, err)
	}
	e = &entry{info: p.Info, record: p.Record}

	m.cacheMu.Lock()
	if cur, ok := m.cache[peer]; ok {
		e = cur
	} else {
		m.cache[peer] = e
	}
	m.cacheMu.Unlock()
	return e, nil
}

func (m *Manager) forget(peer domain.Address) {
	m.cacheMu.Lock()
	delete(m.cache, peer)
	m.cacheMu.Unlock()
}
