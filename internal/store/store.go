package store

import (
	"errors"
	"fmt"
	"strings"

	"sigbridge/internal/domain"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store: closed")
	// ErrBadNamespace rejects namespaces that cannot be mapped to storage.
	ErrBadNamespace = errors.New("store: invalid namespace")
)

// Open returns the record store for backend rooted at path.
func Open(backend, path string) (domain.RecordStore, error) {
	switch backend {
	case BackendFile:
		return NewFileStore(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}

func checkNamespace(ns string) error {
	if ns == "" || strings.ContainsAny(ns, `/\.`) {
		return fmt.Errorf("%w: %q", ErrBadNamespace, ns)
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
