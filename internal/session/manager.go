package session

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sigbridge/internal/adapters"
	"sigbridge/internal/bridge"
	"sigbridge/internal/domain"
	"sigbridge/internal/engine"
	"sigbridge/internal/keys"
	"sigbridge/internal/logging"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("session: manager closed")

// Config wires a Manager.
type Config struct {
	// Registry receives the store adapters. Nil selects bridge.DefaultRegistry.
	Registry *bridge.Registry
	// CallbackBase seeds the adapter callback ids; must be unique per registry.
	CallbackBase uint64
	Keys         *keys.Manager
	Records      domain.RecordStore
	Logger       *slog.Logger
	Now          func() time.Time
}

// Manager is the session manager. It is safe for concurrent use.
type Manager struct {
	keys    *keys.Manager
	records domain.RecordStore
	set     *adapters.Set
	log     *slog.Logger
	now     func() time.Time

	guard   sync.Mutex
	locks   map[domain.Address]*sync.Mutex
	pending map[domain.Address]int

	cacheMu sync.RWMutex
	cache   map[domain.Address]*entry

	closed atomic.Bool
}

// New builds a Manager and registers its store adapters.
func New(cfg Config) (*Manager, error) {
	if cfg.Keys == nil || cfg.Records == nil {
		return nil, fmt.Errorf("session: keys and records are required")
	}
	m := &Manager{
		keys:    cfg.Keys,
		records: cfg.Records,
		log:     logging.OrDiscard(cfg.Logger),
		now:     cfg.Now,
		locks:   make(map[domain.Address]*sync.Mutex),
		pending: make(map[domain.Address]int),
		cache:   make(map[domain.Address]*entry),
	}
	if m.now == nil {
		m.now = time.Now
	}
	set, err := adapters.Register(cfg.Registry, cfg.CallbackBase, adapters.Deps{
		Sessions:      m,
		Identity:      cfg.Keys,
		PreKeys:       cfg.Keys,
		SignedPreKeys: cfg.Keys,
		Records:       cfg.Records,
		Logger:        m.log,
	})
	if err != nil {
		return nil, err
	}
	m.set = set
	return m, nil
}

func (m *Manager) lockFor(peer domain.Address) *sync.Mutex {
	m.guard.Lock()
	defer m.guard.Unlock()
	l, ok := m.locks[peer]
	if !ok {
		l = &sync.Mutex{}
		m.locks[peer] = l
	}
	return l
}

// withPeer runs fn under peer's lock with a fresh call context.
func (m *Manager) withPeer(peer domain.Address, fn func(cc *bridge.CallContext, s engine.Stores) error) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if peer.IsZero() {
		return fmt.Errorf("session: empty peer address")
	}
	l := m.lockFor(peer)
	l.Lock()
	defer l.Unlock()

	cc := bridge.NewCallContext(m.set.Registry(), m.set.IDs(), peer)
	defer cc.Release()
	return fn(cc, bridge.Stores(cc))
}

func (m *Manager) markPending(peer domain.Address, on bool) {
	m.guard.Lock()
	defer m.guard.Unlock()
	if on {
		m.pending[peer]++
		return
	}
	if m.pending[peer]--; m.pending[peer] <= 0 {
		delete(m.pending, peer)
	}
}

// Establish runs the initiator handshake against bundle and stores the new
// session, replacing any existing one.
func (m *Manager) Establish(peer domain.Address, bundle domain.PreKeyBundle) error {
	return m.withPeer(peer, func(cc *bridge.CallContext, s engine.Stores) error {
		return m.establishLocked(peer, bundle, cc, s)
	})
}

func (m *Manager) establishLocked(peer domain.Address, bundle domain.PreKeyBundle, cc *bridge.CallContext, s engine.Stores) error {
	m.markPending(peer, true)
	defer m.markPending(peer, false)

	if err := engine.ProcessPreKeyBundle(toEngine(peer), engineBundle(bundle), s); err != nil {
		return withCause(err, cc)
	}
	m.log.Info("session established", "peer", peer.String(), "role", "initiator",
		"one_time_prekey", bundle.OneTimePreKey != nil)
	return nil
}

// BundleFunc supplies a peer bundle on demand.
type BundleFunc func() (domain.PreKeyBundle, error)

// EncryptOrEstablish is Encrypt, except that a missing session is first
// established from the bundle returned by fetch. The check and the
// handshake happen under the same peer lock, so concurrent callers start at
// most one session.
func (m *Manager) EncryptOrEstablish(peer domain.Address, plaintext []byte, fetch BundleFunc) (domain.CipherMessage, error) {
	var out domain.CipherMessage
	err := m.withPeer(peer, func(cc *bridge.CallContext, s engine.Stores) error {
		e, err := m.lookup(peer)
		if err != nil {
			return err
		}
		if e == nil {
			b, err := fetch()
			if err != nil {
				return err
			}
			if err := m.establishLocked(peer, b, cc, s); err != nil {
				return err
			}
		}
		ct, err := engine.Encrypt(toEngine(peer), plaintext, s)
		if err != nil {
			return withCause(err, cc)
		}
		out = domain.CipherMessage{Type: domain.MessageType(ct.Type), Body: ct.Body}
		return nil
	})
	return out, err
}

// Encrypt advances the sending ratchet for peer. The updated session has been
// persisted when Encrypt returns without error.
func (m *Manager) Encrypt(peer domain.Address, plaintext []byte) (domain.CipherMessage, error) {
	var out domain.CipherMessage
	err := m.withPeer(peer, func(cc *bridge.CallContext, s engine.Stores) error {
		ct, err := engine.Encrypt(toEngine(peer), plaintext, s)
		if err != nil {
			return withCause(err, cc)
		}
		out = domain.CipherMessage{Type: domain.MessageType(ct.Type), Body: ct.Body}
		return nil
	})
	return out, err
}

// Decrypt opens msg from peer. A prekey message with no matching session runs
// the responder handshake first. The one-time prekey it used is consumed only
// if the decrypt, including session persistence, succeeded; otherwise it is
// released for a retry.
func (m *Manager) Decrypt(peer domain.Address, msg domain.CipherMessage) ([]byte, error) {
	var pt []byte
	err := m.withPeer(peer, func(cc *bridge.CallContext, s engine.Stores) error {
		var err error
		switch msg.Type {
		case domain.MessageWhisper:
			pt, err = engine.DecryptMessage(toEngine(peer), msg.Body, s)
			if err != nil {
				return withCause(err, cc)
			}
			return nil

		case domain.MessagePreKey:
			m.markPending(peer, true)
			defer m.markPending(peer, false)

			pt, err = engine.DecryptPreKeyMessage(toEngine(peer), msg.Body, s)
			if err != nil {
				m.keys.ReleasePreKeys(cc.ID)
				return withCause(err, cc)
			}
			// The session is stored by now, so the plaintext is returned even
			// when the tombstone write fails. The key stays consumed in memory
			// and the write is retried by the next commit.
			used := cc.RemovedPreKeys()
			if err := m.keys.CommitPreKeys(cc.ID, used); err != nil {
				m.log.Warn("prekey consumption not persisted", "peer", peer.String(), "prekey_ids", used, "error", err)
			}
			if len(used) > 0 {
				m.log.Info("session established", "peer", peer.String(), "role", "responder", "prekey_ids", used)
			}
			return nil

		default:
			return fmt.Errorf("%w: message type %d", engine.ErrInvalidMessage, msg.Type)
		}
	})
	return pt, err
}

// Reset deletes peer's session. The peer is Absent afterwards.
func (m *Manager) Reset(peer domain.Address) error {
	return m.withPeer(peer, func(*bridge.CallContext, engine.Stores) error {
		if err := m.records.Delete(nsSessions, peer.String()); err != nil {
			return fmt.Errorf("%w: delete session %s: %w", domain.ErrStoreFailure, peer, err)
		}
		m.forget(peer)
		m.log.Info("session reset", "peer", peer.String())
		return nil
	})
}

// Status reports peer's lifecycle state and metadata.
func (m *Manager) Status(peer domain.Address) (domain.SessionInfo, error) {
	m.guard.Lock()
	pending := m.pending[peer] > 0
	m.guard.Unlock()

	e, err := m.lookup(peer)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	info := domain.SessionInfo{Peer: peer, Status: domain.SessionAbsent}
	if e != nil {
		info = e.info
	}
	if pending {
		info.Status = domain.SessionPending
	}
	return info, nil
}

// Has reports whether a session record exists for peer.
func (m *Manager) Has(peer domain.Address) (bool, error) {
	e, err := m.lookup(peer)
	return e != nil, err
}

// Peers lists every peer with a stored session, sorted by address.
func (m *Manager) Peers() ([]domain.Address, error) {
	all, err := m.records.List(nsSessions)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", domain.ErrStoreFailure, err)
	}
	out := make([]domain.Address, 0, len(all))
	for k := range all {
		a, err := domain.ParseAddress(k)
		if err != nil {
			m.log.Warn("skipping malformed session key", "key", k)
			continue
		}
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b domain.Address) int { return strings.Compare(a.String(), b.String()) })
	return out, nil
}

// Close unregisters the store adapters. It does not close the record store.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.set.Close()
	return nil
}

func toEngine(a domain.Address) engine.Address {
	return engine.Address{Name: a.Name, DeviceID: a.DeviceID}
}

func engineBundle(b domain.PreKeyBundle) engine.PreKeyBundle {
	out := engine.PreKeyBundle{
		RegistrationID:        b.RegistrationID,
		DeviceID:              b.DeviceID,
		SignedPreKeyID:        b.SignedPreKeyID,
		SignedPreKeyPublic:    b.SignedPreKey,
		SignedPreKeySignature: b.SignedPreKeySignature,
		IdentityKey:           b.IdentityKey,
	}
	if b.OneTimePreKey != nil {
		out.PreKeyID = b.OneTimePreKey.ID
		out.PreKeyPublic = b.OneTimePreKey.PublicKey
	}
	return out
}

// withCause attaches the handler error recorded on cc, if any, so callers
// can see why a callback failed.
func withCause(err error, cc *bridge.CallContext) error {
	cause := cc.Err()
	if cause == nil {
		return err
	}
	return fmt.Errorf("%w: %w", err, cause)
}

var _ adapters.SessionCache = (*Manager)(nil)
