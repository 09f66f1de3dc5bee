package adapters

import "sigbridge/internal/bridge"

// SessionStore serves load_session and store_session from the session cache.
type SessionStore struct {
	cache SessionCache
}

func (s *SessionStore) load(p *bridge.Params) error {
	rec, ok, err := s.cache.LoadRecord(p.Address)
	if err != nil {
		return storeFailure("load session", err)
	}
	if ok {
		p.OutRecord = rec
	}
	return nil
}

func (s *SessionStore) store(p *bridge.Params) error {
	if err := s.cache.StoreRecord(p.Address, p.Record); err != nil {
		return storeFailure("store session", err)
	}
	return nil
}
