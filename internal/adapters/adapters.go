package adapters

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"sigbridge/internal/bridge"
	"sigbridge/internal/domain"
	"sigbridge/internal/logging"
)

// ErrNoCallContext is returned by handlers that need a per-call side channel
// but were dispatched without one.
var ErrNoCallContext = errors.New("adapters: callback dispatched without a call context")

// SessionCache is the session manager's record cache.
type SessionCache interface {
	LoadRecord(peer domain.Address) ([]byte, bool, error)
	StoreRecord(peer domain.Address, record []byte) error
}

// LocalIdentity yields the provisioned local identity.
type LocalIdentity interface {
	Identity() (domain.LocalIdentity, error)
}

// PreKeys is the one-time prekey pool with reservation.
type PreKeys interface {
	ReservePreKey(call uuid.UUID, id uint32) ([]byte, bool, error)
	StorePreKey(id uint32, record []byte) error
}

// SignedPreKeys holds signed prekey records.
type SignedPreKeys interface {
	LoadSignedPreKey(id uint32) ([]byte, bool, error)
	StoreSignedPreKey(id uint32, record []byte) error
}

// Deps are the collaborators behind a Set.
type Deps struct {
	Sessions      SessionCache
	Identity      LocalIdentity
	PreKeys       PreKeys
	SignedPreKeys SignedPreKeys
	// Records holds remote identities.
	Records domain.RecordStore
	Logger  *slog.Logger
}

// Set is one registered group of the four store adapters.
type Set struct {
	reg *bridge.Registry
	ids bridge.IDSet

	Session      *SessionStore
	Identity     *IdentityStore
	PreKey       *PreKeyStore
	SignedPreKey *SignedPreKeyStore
}

// Register builds the adapters and registers every handler in reg under IDs
// derived from base. A nil reg selects bridge.DefaultRegistry.
func Register(reg *bridge.Registry, base uint64, d Deps) (*Set, error) {
	if reg == nil {
		reg = bridge.DefaultRegistry
	}
	if base == 0 {
		return nil, fmt.Errorf("adapters: callback base must be non-zero")
	}
	if d.Sessions == nil || d.Identity == nil || d.PreKeys == nil || d.SignedPreKeys == nil || d.Records == nil {
		return nil, fmt.Errorf("adapters: incomplete dependencies")
	}
	log := logging.OrDiscard(d.Logger)

	s := &Set{
		reg:          reg,
		ids:          bridge.NewIDSet(base),
		Session:      &SessionStore{cache: d.Sessions},
		Identity:     &IdentityStore{local: d.Identity, records: d.Records, log: log},
		PreKey:       &PreKeyStore{keys: d.PreKeys, log: log},
		SignedPreKey: &SignedPreKeyStore{keys: d.SignedPreKeys},
	}

	handlers := map[bridge.Kind]bridge.Handler{
		bridge.KindLoadSession:            s.Session.load,
		bridge.KindStoreSession:           s.Session.store,
		bridge.KindGetIdentityKeyPair:     s.Identity.keyPair,
		bridge.KindGetLocalRegistrationID: s.Identity.registrationID,
		bridge.KindSaveIdentity:           s.Identity.save,
		bridge.KindGetIdentity:            s.Identity.get,
		bridge.KindIsTrustedIdentity:      s.Identity.isTrusted,
		bridge.KindLoadPreKey:             s.PreKey.load,
		bridge.KindStorePreKey:            s.PreKey.store,
		bridge.KindRemovePreKey:           s.PreKey.remove,
		bridge.KindLoadSignedPreKey:       s.SignedPreKey.load,
		bridge.KindStoreSignedPreKey:      s.SignedPreKey.store,
	}
	for _, k := range bridge.Kinds(bridge.FamilyInvalid) {
		if err := reg.Register(k, s.ids.ID(k), handlers[k]); err != nil {
			s.Close()
			return nil, err
		}
	}
	log.Debug("store adapters registered", "callback_base", base)
	return s, nil
}

// IDs returns the callback IDs this set registered.
func (s *Set) IDs() bridge.IDSet { return s.ids }

// Registry returns the registry the set is registered in.
func (s *Set) Registry() *bridge.Registry { return s.reg }

// Close unregisters every handler. Later callbacks to these IDs fail with
// an unknown-callback status.
func (s *Set) Close() {
	for _, k := range bridge.Kinds(bridge.FamilyInvalid) {
		s.reg.Unregister(s.ids.ID(k))
	}
}

func storeFailure(op string, err error) error {
	if errors.Is(err, domain.ErrStoreFailure) {
		return err
	}
	return fmt.Errorf("adapters: %s: %w: %w", op, domain.ErrStoreFailure, err)
}
