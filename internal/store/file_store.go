package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sigbridge/internal/domain"
)

// FileStore keeps one JSON document per namespace under dir. Every mutation
// rewrites its namespace file atomically.
type FileStore struct {
	dir string

	mu     sync.Mutex
	cache  map[string]map[string][]byte
	closed bool
}

// NewFileStore creates dir if needed and returns a FileStore rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir, cache: make(map[string]map[string][]byte)}, nil
}

func (s *FileStore) path(ns string) string { return filepath.Join(s.dir, ns+".json") }

// load returns the namespace map, reading it from disk on first use.
func (s *FileStore) load(ns string) (map[string][]byte, error) {
	if m, ok := s.cache[ns]; ok {
		return m, nil
	}
	m := make(map[string][]byte)
	if err := readJSON(s.path(ns), &m); err != nil {
		return nil, fmt.Errorf("store: read %s: %w", ns, err)
	}
	s.cache[ns] = m
	return m, nil
}

// flush writes next as the whole namespace and installs it in the cache only
// once the write has succeeded.
func (s *FileStore) flush(ns string, next map[string][]byte) error {
	if err := writeJSON(s.path(ns), next, 0o600); err != nil {
		return fmt.Errorf("store: write %s: %w", ns, err)
	}
	s.cache[ns] = next
	return nil
}

func (s *FileStore) Get(ns, key string) ([]byte, bool, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	m, err := s.load(ns)
	if err != nil {
		return nil, false, err
	}
	v, ok := m[key]
	return cloneBytes(v), ok, nil
}

func (s *FileStore) Put(ns, key string, value []byte) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	m, err := s.load(ns)
	if err != nil {
		return err
	}
	next := make(map[string][]byte, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	next[key] = cloneBytes(value)
	return s.flush(ns, next)
}

func (s *FileStore) Delete(ns, key string) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	m, err := s.load(ns)
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	next := make(map[string][]byte, len(m))
	for k, v := range m {
		if k != key {
			next[k] = v
		}
	}
	return s.flush(ns, next)
}

func (s *FileStore) List(ns string) (map[string][]byte, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	m, err := s.load(ns)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = cloneBytes(v)
	}
	return out, nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cache = nil
	s.mu.Unlock()
	return nil
}

var _ domain.RecordStore = (*FileStore)(nil)
