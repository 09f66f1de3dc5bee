package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"sigbridge/internal/bridge"
	"sigbridge/internal/config"
	"sigbridge/internal/directory"
	"sigbridge/internal/domain"
	"sigbridge/internal/keys"
	"sigbridge/internal/logging"
	"sigbridge/internal/protocol"
	"sigbridge/internal/session"
	"sigbridge/internal/store"
)

// ErrNoName is returned by operations that need Identity.Name.
var ErrNoName = errors.New("app: identity.name is not configured")

// Options holds runtime wiring inputs that do not belong in a config file.
type Options struct {
	Config     *config.Config
	Passphrase string
	// Logger must not carry a component attribute; Open tags each subsystem.
	Logger *slog.Logger
	// HTTP is used for the directory client; nil builds one from the config.
	HTTP *http.Client
	// Scrypt overrides the vault KDF cost; zero selects the default.
	Scrypt store.ScryptParams
}

// App bundles every component the CLI uses.
type App struct {
	Config    *config.Config
	Self      domain.Address
	Records   domain.RecordStore
	Vault     domain.Vault
	Keys      *keys.Manager
	Sessions  *session.Manager
	Protocol  *protocol.Service
	Directory domain.Directory
	Log       *slog.Logger
}

// Open builds the dependency graph described by opts.Config.
func Open(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := logging.OrDiscard(opts.Logger)

	var vault domain.Vault
	if cfg.Storage.Backend == store.BackendMemory {
		vault = store.NewMemoryVault()
	} else {
		if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
			return nil, err
		}
		v, err := store.NewFileVault(cfg.VaultPath(), opts.Passphrase, opts.Scrypt)
		if err != nil {
			return nil, err
		}
		vault = v
	}

	records, err := store.Open(cfg.Storage.Backend, cfg.StoragePath())
	if err != nil {
		return nil, err
	}

	km, err := keys.New(records, vault, keys.Options{GraceWindow: cfg.GraceWindow(), Logger: logging.Component(log, "keys")})
	if err != nil {
		records.Close()
		return nil, err
	}

	sm, err := session.New(session.Config{
		Registry:     bridge.DefaultRegistry,
		CallbackBase: cfg.Bridge.CallbackBase,
		Keys:         km,
		Records:      records,
		Logger:       logging.Component(log, "session"),
	})
	if err != nil {
		records.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Self:     domain.NewAddress(cfg.Identity.Name, cfg.Identity.Device),
		Records:  records,
		Vault:    vault,
		Keys:     km,
		Sessions: sm,
		Log:      logging.Component(log, "app"),
	}

	popts := protocol.Options{
		Self:        a.Self,
		MinPreKeys:  cfg.Keys.MinPreKeys,
		PreKeyBatch: cfg.Keys.PreKeyBatch,
		Logger:      logging.Component(log, "protocol"),
	}
	if cfg.Directory.URL != "" {
		dc, err := directory.NewClient(cfg.Directory.URL, directory.ClientOptions{
			HTTP:    opts.HTTP,
			Timeout: cfg.DirectoryTimeout(),
			Retries: cfg.Directory.Retries,
			Logger:  logging.Component(log, "directory"),
		})
		if err != nil {
			sm.Close()
			records.Close()
			return nil, err
		}
		a.Directory = dc
		popts.Bundles = dc
	}
	a.Protocol = protocol.New(km, sm, popts)
	return a, nil
}

// Init provisions the identity, a signed prekey and the one-time prekey pool.
// It is idempotent.
func (a *App) Init() (domain.Fingerprint, error) {
	if _, err := a.Keys.EnsureIdentity(); err != nil {
		return "", err
	}
	if _, err := a.Keys.EnsureSignedPreKey(); err != nil {
		return "", err
	}
	if _, err := a.Keys.ReplenishPreKeys(a.Config.Keys.MinPreKeys, a.Config.Keys.PreKeyBatch); err != nil {
		return "", err
	}
	return a.Keys.Fingerprint()
}

// Refresh rotates the signed prekey when it is due, prunes retired ones past
// the grace window and, with a directory configured, republishes.
func (a *App) Refresh(ctx context.Context) error {
	due, err := a.Keys.SignedPreKeyDue(a.Config.RotationAge())
	if err != nil {
		return err
	}
	if due {
		spk, err := a.Keys.RotateSignedPreKey()
		if err != nil {
			return err
		}
		a.Log.Info("signed prekey rotated", "signed_prekey_id", spk.ID)
	}
	if n, err := a.Keys.PruneSignedPreKeys(); err != nil {
		return err
	} else if n > 0 {
		a.Log.Info("retired signed prekeys pruned", "count", n)
	}
	if a.Directory == nil {
		_, err := a.Keys.ReplenishPreKeys(a.Config.Keys.MinPreKeys, a.Config.Keys.PreKeyBatch)
		return err
	}
	if a.Self.IsZero() {
		return ErrNoName
	}
	return a.Protocol.PublishBundle(ctx)
}

// Close releases the callback registrations and the record store.
func (a *App) Close() error {
	return errors.Join(a.Protocol.Close(), a.Records.Close())
}

// ParsePeer parses a "name" or "name.device" peer argument.
func ParsePeer(s string) (domain.Address, error) {
	addr, err := domain.ParseAddress(s)
	if err != nil {
		return domain.Address{}, fmt.Errorf("app: peer %q: %w", s, err)
	}
	return addr, nil
}
