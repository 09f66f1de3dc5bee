package keys

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"sigbridge/internal/domain"
	"sigbridge/internal/engine"
	"sigbridge/internal/logging"
)

// DefaultGraceWindow is how long a rotated-out signed prekey stays loadable
// for handshakes that were started against it.
const DefaultGraceWindow = 7 * 24 * time.Hour

var (
	// ErrNoIdentity is returned while the vault holds no identity.
	ErrNoIdentity = errors.New("keys: identity not provisioned")
	// ErrNoSignedPreKey is returned when no signed prekey has been promoted.
	ErrNoSignedPreKey = errors.New("keys: no current signed prekey")
	// ErrBadSignature rejects a signed prekey whose signature does not verify.
	ErrBadSignature = fmt.Errorf("%w: signed prekey signature does not verify", domain.ErrHandshakeFailure)
	// ErrConsumed rejects writes to a one-time prekey id that was already used.
	ErrConsumed = fmt.Errorf("%w: prekey id already consumed", domain.ErrPreKeyExhausted)
)

// SignedPreKeyFunc produces a serialized signed prekey record.
type SignedPreKeyFunc func(id uint32, identityPublic, identityPrivate []byte, now time.Time) ([]byte, error)

// Options tune a Manager. Zero values select defaults.
type Options struct {
	GraceWindow  time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
	SignedPreKey SignedPreKeyFunc
}

// Manager is the key manager. It is safe for concurrent use.
type Manager struct {
	records domain.RecordStore
	vault   domain.Vault
	grace   time.Duration
	now     func() time.Time
	log     *slog.Logger
	genSPK  SignedPreKeyFunc

	mu       sync.Mutex
	identity *domain.LocalIdentity
	meta     meta
	reserved map[uint32]uuid.UUID
	// unflushed holds consumed ids whose tombstone or deletion is not yet durable.
	unflushed []uint32
}

// New loads key bookkeeping from records. The identity is unsealed lazily
// on first use.
func New(records domain.RecordStore, vault domain.Vault, opts Options) (*Manager, error) {
	m := &Manager{
		records:  records,
		vault:    vault,
		grace:    opts.GraceWindow,
		now:      opts.Now,
		log:      logging.OrDiscard(opts.Logger),
		genSPK:   opts.SignedPreKey,
		reserved: make(map[uint32]uuid.UUID),
	}
	if m.grace <= 0 {
		m.grace = DefaultGraceWindow
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.genSPK == nil {
		m.genSPK = engine.GenerateSignedPreKey
	}
	md, err := loadMeta(records)
	if err != nil {
		return nil, err
	}
	m.meta = md
	return m, nil
}

// ---------- Identity ----------

// EnsureIdentity loads the local identity, generating and sealing one on
// first use.
func (m *Manager) EnsureIdentity() (domain.LocalIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.loadIdentityLocked()
	if err == nil || !errors.Is(err, ErrNoIdentity) {
		return id, err
	}
	pub, priv, err := engine.GenerateIdentityKeyPair()
	if err != nil {
		return domain.LocalIdentity{}, fmt.Errorf("keys: generate identity: %w", err)
	}
	reg, err := engine.GenerateRegistrationID()
	if err != nil {
		return domain.LocalIdentity{}, fmt.Errorf("keys: generate registration id: %w", err)
	}
	id = domain.LocalIdentity{
		KeyPair:        domain.IdentityKeyPair{Public: pub, Private: priv},
		RegistrationID: reg,
		CreatedUTC:     m.now().UTC().Unix(),
	}
	if err := m.vault.SaveIdentity(id); err != nil {
		return domain.LocalIdentity{}, fmt.Errorf("keys: save identity: %w", err)
	}
	m.log.Info("identity generated",
		"fingerprint", engine.IdentityFingerprint(pub),
		"registration_id", reg)
	m.identity = &id
	return id, nil
}

// Identity returns the provisioned identity, unsealing it from the vault on
// first use. It never generates one.
func (m *Manager) Identity() (domain.LocalIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadIdentityLocked()
}

// loadIdentityLocked returns the cached identity or the one sealed in the
// vault, and ErrNoIdentity when the vault is empty.
func (m *Manager) loadIdentityLocked() (domain.LocalIdentity, error) {
	if m.identity != nil {
		return *m.identity, nil
	}
	id, ok, err := m.vault.LoadIdentity()
	if err != nil {
		return domain.LocalIdentity{}, fmt.Errorf("keys: load identity: %w", err)
	}
	if !ok {
		return domain.LocalIdentity{}, ErrNoIdentity
	}
	if err := engine.ValidateIdentityKey(id.KeyPair.Public); err != nil {
		return domain.LocalIdentity{}, fmt.Errorf("keys: stored identity: %w", err)
	}
	m.identity = &id
	return id, nil
}

// Fingerprint returns the display fingerprint of the identity key.
func (m *Manager) Fingerprint() (domain.Fingerprint, error) {
	id, err := m.Identity()
	if err != nil {
		return "", err
	}
	return domain.Fingerprint(engine.IdentityFingerprint(id.KeyPair.Public)), nil
}

// ---------- One-time prekeys ----------

// GeneratePreKeys creates count one-time prekeys. startID 0 continues from
// the persisted counter. Ids wrap past engine.MaxPreKeyID, never use 0 and
// skip ids that are live or were consumed.
func (m *Manager) GeneratePreKeys(startID uint32, count int) ([]domain.PreKeyRecord, error) {
	if count <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	live, err := m.records.List(nsPreKeys)
	if err != nil {
		return nil, storeErr("list prekeys", err)
	}
	next := m.meta.NextPreKeyID
	if startID != 0 {
		next = startID
	}

	out := make([]domain.PreKeyRecord, 0, count)
	for len(out) < count {
		id := m.freePreKeyID(next, live)
		if id == 0 {
			return out, fmt.Errorf("%w: id space exhausted", domain.ErrPreKeyExhausted)
		}
		rec, err := engine.GeneratePreKey(id)
		if err != nil {
			return out, err
		}
		if err := m.records.Put(nsPreKeys, idKey(id), rec); err != nil {
			return out, storeErr("store prekey", err)
		}
		live[idKey(id)] = rec
		out = append(out, domain.PreKeyRecord{ID: id, Record: rec})
		next = nextPreKeyID(id)
	}

	md := m.meta.clone()
	md.NextPreKeyID = next
	if err := saveMeta(m.records, md); err != nil {
		return out, err
	}
	m.meta = md
	m.log.Debug("prekeys generated", "count", len(out), "next_id", next)
	return out, nil
}

func nextPreKeyID(id uint32) uint32 {
	if id >= engine.MaxPreKeyID {
		return 1
	}
	return id + 1
}

// freePreKeyID returns the first usable id at or after start, or 0 when the
// whole space is taken.
func (m *Manager) freePreKeyID(start uint32, live map[string][]byte) uint32 {
	if start == 0 || start > engine.MaxPreKeyID {
		start = 1
	}
	id := start
	for range engine.MaxPreKeyID {
		_, used := live[idKey(id)]
		_, gone := m.meta.Consumed[id]
		if !used && !gone {
			return id
		}
		id = nextPreKeyID(id)
	}
	return 0
}

// StorePreKey writes an externally produced prekey record.
func (m *Manager) StorePreKey(id uint32, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, gone := m.meta.Consumed[id]; gone {
		return ErrConsumed
	}
	if err := m.records.Put(nsPreKeys, idKey(id), record); err != nil {
		return storeErr("store prekey", err)
	}
	return nil
}

// AvailablePreKeys counts one-time prekeys that are neither reserved nor consumed.
func (m *Manager) AvailablePreKeys() (int, error) {
	ids, err := m.availableIDs()
	return len(ids), err
}

func (m *Manager) availableIDs() ([]uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all, err := m.records.List(nsPreKeys)
	if err != nil {
		return nil, storeErr("list prekeys", err)
	}
	ids := make([]uint32, 0, len(all))
	for k := range all {
		id, ok := parseIDKey(k)
		if !ok {
			continue
		}
		if _, gone := m.meta.Consumed[id]; gone {
			continue
		}
		if _, held := m.reserved[id]; held {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// PublishedPreKeys lists the public halves of every available one-time prekey.
func (m *Manager) PublishedPreKeys() ([]domain.OneTimePreKeyPublic, error) {
	ids, err := m.availableIDs()
	if err != nil {
		return nil, err
	}
	out := make([]domain.OneTimePreKeyPublic, 0, len(ids))
	for _, id := range ids {
		pub, ok, err := m.preKeyPublic(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, pub)
		}
	}
	return out, nil
}

func (m *Manager) preKeyPublic(id uint32) (domain.OneTimePreKeyPublic, bool, error) {
	rec, ok, err := m.records.Get(nsPreKeys, idKey(id))
	if err != nil {
		return domain.OneTimePreKeyPublic{}, false, storeErr("load prekey", err)
	}
	if !ok {
		return domain.OneTimePreKeyPublic{}, false, nil
	}
	_, pub, err := engine.PreKeyPublic(rec)
	if err != nil {
		return domain.OneTimePreKeyPublic{}, false, err
	}
	return domain.OneTimePreKeyPublic{ID: id, PublicKey: pub}, true, nil
}

// ReplenishPreKeys tops the pool up with batch new keys when fewer than low
// are available. It returns how many were generated.
func (m *Manager) ReplenishPreKeys(low, batch int) (int, error) {
	n, err := m.AvailablePreKeys()
	if err != nil {
		return 0, err
	}
	if n >= low {
		return 0, nil
	}
	if batch < low-n {
		batch = low - n
	}
	recs, err := m.GeneratePreKeys(0, batch)
	return len(recs), err
}

// ---------- Reservation ----------

// ReservePreKey hands prekey id to call until it is committed or released.
// ok is false when the key does not exist, was consumed, or is held by a
// different call.
func (m *Manager) ReservePreKey(call uuid.UUID, id uint32) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, gone := m.meta.Consumed[id]; gone {
		return nil, false, nil
	}
	if owner, held := m.reserved[id]; held && owner != call {
		m.log.Debug("prekey held by another handshake", "prekey_id", id)
		return nil, false, nil
	}
	rec, ok, err := m.records.Get(nsPreKeys, idKey(id))
	if err != nil {
		return nil, false, storeErr("load prekey", err)
	}
	if !ok {
		return nil, false, nil
	}
	m.reserved[id] = call
	return rec, true, nil
}

// CommitPreKeys consumes ids for call and releases anything else it held.
// The tombstone takes effect in memory before anything is written, so even a
// failed write can never make the key loadable again. Writes that fail are
// retried by the next commit.
func (m *Manager) CommitPreKeys(call uuid.UUID, ids []uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.releaseLocked(call)

	if len(ids) == 0 && len(m.unflushed) == 0 {
		return nil
	}
	md := m.meta.clone()
	at := m.now().UTC().UnixMilli()
	for _, id := range ids {
		md.Consumed[id] = at
	}
	m.meta = md

	todo := append(slices.Clone(m.unflushed), ids...)
	var errs []error
	if err := saveMeta(m.records, md); err != nil {
		errs = append(errs, err)
	}
	for _, id := range todo {
		if err := m.records.Delete(nsPreKeys, idKey(id)); err != nil {
			errs = append(errs, storeErr("delete prekey", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.unflushed = todo
		return err
	}
	m.unflushed = nil
	m.log.Debug("prekeys consumed", "ids", todo)
	return nil
}

// PendingCommits reports how many consumed prekeys still await a durable write.
func (m *Manager) PendingCommits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unflushed)
}

// ReleasePreKeys returns every key held by call to the pool.
func (m *Manager) ReleasePreKeys(call uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(call)
}

func (m *Manager) releaseLocked(call uuid.UUID) {
	for id, owner := range m.reserved {
		if owner == call {
			delete(m.reserved, id)
		}
	}
}

// IsConsumed reports whether id has been committed.
func (m *Manager) IsConsumed(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, gone := m.meta.Consumed[id]
	return gone
}
