package config

import (
	"errors"
	"fmt"
	"net/url"

	"sigbridge/internal/logging"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Validate checks c for values the rest of the program cannot work with.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Home == "" {
		bad("home is empty")
	}
	if c.Identity.Device == 0 {
		bad("identity.device must be non-zero")
	}
	switch c.Storage.Backend {
	case "file", "sqlite", "memory":
	default:
		bad("storage.backend %q is not file, sqlite or memory", c.Storage.Backend)
	}
	if c.Keys.PreKeyBatch <= 0 {
		bad("keys.prekey_batch must be positive")
	}
	if c.Keys.MinPreKeys < 0 || c.Keys.MinPreKeys > c.Keys.PreKeyBatch {
		bad("keys.min_prekeys must be between 0 and keys.prekey_batch")
	}
	if c.Keys.SignedPreKeyRotationHours <= 0 {
		bad("keys.signed_prekey_rotation_hours must be positive")
	}
	if c.Keys.GraceWindowHours < 0 {
		bad("keys.grace_window_hours must not be negative")
	}
	if c.Directory.URL != "" {
		if u, err := url.Parse(c.Directory.URL); err != nil || u.Scheme == "" || u.Host == "" {
			bad("directory.url %q is not an absolute URL", c.Directory.URL)
		}
	}
	if c.Directory.TimeoutSec <= 0 {
		bad("directory.timeout_sec must be positive")
	}
	if c.Directory.Retries < 0 {
		bad("directory.retries must not be negative")
	}
	if c.Bridge.CallbackBase == 0 {
		bad("bridge.callback_base must be non-zero")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		bad("logging.level: %v", err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		bad("logging.format: %v", err)
	}
	return errors.Join(errs...)
}

// LoggingConfig converts the logging section for logging.New.
func (c *Config) LoggingConfig(component string) *logging.Config {
	lc := logging.DefaultConfig()
	if lv, err := logging.ParseLevel(c.Logging.Level); err == nil {
		lc.Level = lv
	}
	if f, err := logging.ParseFormat(c.Logging.Format); err == nil {
		lc.Format = f
	}
	if c.Logging.Output != "" {
		lc.Output = c.Logging.Output
	}
	lc.FilePath = c.Logging.Path
	lc.Component = component
	return lc
}
