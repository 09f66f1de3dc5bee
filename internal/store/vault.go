package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sigbridge/internal/domain"
)

// ErrWeakPassphrase rejects passphrases too short to seal a vault.
var ErrWeakPassphrase = errors.New("store: passphrase must be at least 8 characters")

const minPassphraseLen = 8

// FileVault seals the local identity under a passphrase in a single file.
type FileVault struct {
	path       string
	passphrase string
	params     ScryptParams

	mu sync.Mutex
}

// NewFileVault returns a vault at path. A zero params selects DefaultScryptParams.
func NewFileVault(path, passphrase string, params ScryptParams) (*FileVault, error) {
	if len(passphrase) < minPassphraseLen {
		return nil, ErrWeakPassphrase
	}
	if params == (ScryptParams{}) {
		params = DefaultScryptParams
	}
	return &FileVault{path: path, passphrase: passphrase, params: params}, nil
}

// SaveIdentity seals id and replaces the vault file.
func (v *FileVault) SaveIdentity(id domain.LocalIdentity) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	sealed, err := encrypt(v.passphrase, raw, v.params)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return fmt.Errorf("store: create vault dir: %w", err)
	}
	return writeFile(v.path, sealed, 0o600)
}

// LoadIdentity opens the vault. A missing file yields ok=false.
func (v *FileVault) LoadIdentity() (domain.LocalIdentity, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	sealed, err := readFile(v.path)
	if err != nil {
		return domain.LocalIdentity{}, false, err
	}
	if sealed == nil {
		return domain.LocalIdentity{}, false, nil
	}
	raw, err := decrypt(v.passphrase, sealed)
	if err != nil {
		return domain.LocalIdentity{}, false, err
	}
	var id domain.LocalIdentity
	if err := json.Unmarshal(raw, &id); err != nil {
		return domain.LocalIdentity{}, false, err
	}
	return id, true, nil
}

// MemoryVault holds the identity in memory, for tests and ephemeral runs.
type MemoryVault struct {
	mu  sync.Mutex
	id  domain.LocalIdentity
	set bool
}

// NewMemoryVault returns an empty MemoryVault.
func NewMemoryVault() *MemoryVault { return &MemoryVault{} }

func (v *MemoryVault) SaveIdentity(id domain.LocalIdentity) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.id, v.set = id, true
	return nil
}

func (v *MemoryVault) LoadIdentity() (domain.LocalIdentity, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.id, v.set, nil
}

var (
	_ domain.Vault = (*FileVault)(nil)
	_ domain.Vault = (*MemoryVault)(nil)
)
