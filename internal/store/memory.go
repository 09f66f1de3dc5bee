package store

import (
	"sync"

	"sigbridge/internal/domain"
)

// MemoryStore keeps records in process memory. Values are copied on the way
// in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(ns, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, ok := s.data[ns][key]
	return cloneBytes(v), ok, nil
}

func (s *MemoryStore) Put(ns, key string, value []byte) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	m := s.data[ns]
	if m == nil {
		m = make(map[string][]byte)
		s.data[ns] = m
	}
	m[key] = cloneBytes(value)
	return nil
}

func (s *MemoryStore) Delete(ns, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.data[ns], key)
	return nil
}

func (s *MemoryStore) List(ns string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[string][]byte, len(s.data[ns]))
	for k, v := range s.data[ns] {
		out[k] = cloneBytes(v)
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ domain.RecordStore = (*MemoryStore)(nil)
