package protocol

import (
	"context"
	"fmt"
	"log/slog"

	"sigbridge/internal/domain"
	"sigbridge/internal/keys"
	"sigbridge/internal/logging"
	"sigbridge/internal/session"
)

// Options tunes a Service.
type Options struct {
	// Self is the local address advertised when publishing.
	Self domain.Address
	// Bundles resolves peer bundles for transparent session setup. If it
	// also implements domain.Directory, PublishBundle uploads through it.
	Bundles domain.BundleSource
	// MinPreKeys triggers replenishment in PublishBundle; PreKeyBatch is
	// how many are generated when it does.
	MinPreKeys  int
	PreKeyBatch int
	Logger      *slog.Logger
}

// Service implements domain.ProtocolService.
type Service struct {
	keys     *keys.Manager
	sessions *session.Manager
	opts     Options
	log      *slog.Logger
}

// New returns a Service over km and sm. The caller keeps ownership of the
// record store; Close only releases the session manager's registrations.
func New(km *keys.Manager, sm *session.Manager, opts Options) *Service {
	if opts.PreKeyBatch <= 0 {
		opts.PreKeyBatch = 100
	}
	if opts.MinPreKeys <= 0 {
		opts.MinPreKeys = opts.PreKeyBatch / 4
	}
	if opts.Self.DeviceID == 0 {
		opts.Self.DeviceID = 1
	}
	return &Service{keys: km, sessions: sm, opts: opts, log: logging.OrDiscard(opts.Logger)}
}

// EstablishSession runs the initiator handshake with bundle, replacing any
// session with peer.
func (s *Service) EstablishSession(peer domain.Address, bundle domain.PreKeyBundle) error {
	err := s.sessions.Establish(peer, bundle)
	return translate("establish", peer, err, domain.ErrHandshakeFailure)
}

// InitiateSession fetches peer's bundle from the directory and establishes
// a session ahead of the first message.
func (s *Service) InitiateSession(ctx context.Context, peer domain.Address) error {
	if s.opts.Bundles == nil {
		return translate("initiate", peer, fmt.Errorf("no bundle source configured"), domain.ErrNoSession)
	}
	b, err := s.opts.Bundles.FetchBundle(ctx, peer)
	if err != nil {
		return translate("initiate", peer, err, domain.ErrNoSession)
	}
	return s.EstablishSession(peer, b)
}

// Encrypt encrypts plaintext for peer. Without a session it establishes one
// from the directory, or fails with ErrNoSession when none is configured.
func (s *Service) Encrypt(ctx context.Context, peer domain.Address, plaintext []byte) (domain.CipherMessage, error) {
	fetch := func() (domain.PreKeyBundle, error) {
		if s.opts.Bundles == nil {
			return domain.PreKeyBundle{}, domain.ErrNoSession
		}
		b, err := s.opts.Bundles.FetchBundle(ctx, peer)
		if err != nil {
			return domain.PreKeyBundle{}, fmt.Errorf("%w: fetch bundle: %w", domain.ErrNoSession, err)
		}
		s.log.Debug("fetched bundle", "peer", peer.String(), "one_time_prekey", b.OneTimePreKey != nil)
		return b, nil
	}
	msg, err := s.sessions.EncryptOrEstablish(peer, plaintext, fetch)
	if err != nil {
		return domain.CipherMessage{}, translate("encrypt", peer, err, domain.ErrRatchetFailure)
	}
	return msg, nil
}

// Decrypt opens msg from peer. A prekey message with no session performs the
// responder handshake.
func (s *Service) Decrypt(peer domain.Address, msg domain.CipherMessage) ([]byte, error) {
	pt, err := s.sessions.Decrypt(peer, msg)
	if err != nil {
		s.log.Warn("decrypt failed", "peer", peer.String(), "type", msg.Type.String(), "err", err)
		return nil, translate("decrypt", peer, err, domain.ErrRatchetFailure)
	}
	return pt, nil
}

// CurrentPreKeyBundle returns the bundle a peer would use to reach us.
func (s *Service) CurrentPreKeyBundle() (domain.PreKeyBundle, error) {
	b, err := s.keys.CurrentBundle(s.opts.Self.DeviceID)
	return b, translate("bundle", domain.Address{}, err, domain.ErrHandshakeFailure)
}

// ResetSession forgets the session with peer.
func (s *Service) ResetSession(peer domain.Address) error {
	return translate("reset", peer, s.sessions.Reset(peer), domain.ErrStoreFailure)
}

// SessionStatus reports the lifecycle state of the session with peer.
func (s *Service) SessionStatus(peer domain.Address) (domain.SessionInfo, error) {
	info, err := s.sessions.Status(peer)
	return info, translate("status", peer, err, domain.ErrStoreFailure)
}

// Sessions lists peers with a stored session.
func (s *Service) Sessions() ([]domain.Address, error) {
	peers, err := s.sessions.Peers()
	return peers, translate("sessions", domain.Address{}, err, domain.ErrStoreFailure)
}

// Fingerprint returns the local identity fingerprint.
func (s *Service) Fingerprint() (domain.Fingerprint, error) {
	fp, err := s.keys.Fingerprint()
	return fp, translate("fingerprint", domain.Address{}, err, domain.ErrHandshakeFailure)
}

// PublishBundle tops up the one-time prekey pool and uploads the public half
// of everything to the directory.
func (s *Service) PublishBundle(ctx context.Context) error {
	dir, ok := s.opts.Bundles.(domain.Directory)
	if !ok {
		return translate("publish", s.opts.Self, fmt.Errorf("no directory configured"), domain.ErrNoSession)
	}
	added, err := s.keys.ReplenishPreKeys(s.opts.MinPreKeys, s.opts.PreKeyBatch)
	if err != nil {
		return translate("publish", s.opts.Self, err, domain.ErrStoreFailure)
	}
	pub, err := s.keys.PublishedKeys(s.opts.Self.DeviceID)
	if err != nil {
		return translate("publish", s.opts.Self, err, domain.ErrHandshakeFailure)
	}
	if err := dir.Publish(ctx, s.opts.Self, pub); err != nil {
		return translate("publish", s.opts.Self, err, domain.ErrStoreFailure)
	}
	s.log.Info("bundle published", "self", s.opts.Self.String(), "one_time_prekeys", len(pub.OneTimePreKeys), "generated", added)
	return nil
}

// Close unregisters the store adapters.
func (s *Service) Close() error {
	return s.sessions.Close()
}

var _ domain.ProtocolService = (*Service)(nil)
