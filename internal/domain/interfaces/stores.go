package interfaces

import domaintypes "sigbridge/internal/domain/types"

// RecordStore is the durable collaborator behind every store adapter. It
// knows nothing beyond namespace/key to opaque bytes.
type RecordStore interface {
	Get(namespace, key string) ([]byte, bool, error)
	Put(namespace, key string, value []byte) error
	Delete(namespace, key string) error
	List(namespace string) (map[string][]byte, error)
	Close() error
}

// Vault keeps the local identity in secure storage.
type Vault interface {
	SaveIdentity(id domaintypes.LocalIdentity) error
	// LoadIdentity returns ok=false when nothing has been provisioned yet.
	LoadIdentity() (domaintypes.LocalIdentity, bool, error)
}
