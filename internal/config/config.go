// Package config loads, validates and defaults sigbridge configuration.
//
// Files may be TOML, YAML or JSON; the extension picks the decoder. Every
// field can be overridden from SIGBRIDGE_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the complete client configuration.
type Config struct {
	// Home holds the vault and, unless Storage.Path says otherwise, records.
	Home string `toml:"home" json:"home" yaml:"home"`

	Identity  IdentityConfig  `toml:"identity" json:"identity" yaml:"identity"`
	Storage   StorageConfig   `toml:"storage" json:"storage" yaml:"storage"`
	Keys      KeysConfig      `toml:"keys" json:"keys" yaml:"keys"`
	Directory DirectoryConfig `toml:"directory" json:"directory" yaml:"directory"`
	Bridge    BridgeConfig    `toml:"bridge" json:"bridge" yaml:"bridge"`
	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging"`
}

// IdentityConfig names this installation.
type IdentityConfig struct {
	Name   string `toml:"name" json:"name" yaml:"name"`
	Device uint32 `toml:"device" json:"device" yaml:"device"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	// Backend is "file", "sqlite" or "memory".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`
	// Path is the records directory (file) or database file (sqlite).
	Path string `toml:"path" json:"path" yaml:"path"`
	// VaultPath is the sealed identity file.
	VaultPath string `toml:"vault_path" json:"vault_path" yaml:"vault_path"`
}

// KeysConfig tunes prekey generation and rotation.
type KeysConfig struct {
	PreKeyBatch int `toml:"prekey_batch" json:"prekey_batch" yaml:"prekey_batch"`
	MinPreKeys  int `toml:"min_prekeys" json:"min_prekeys" yaml:"min_prekeys"`
	// SignedPreKeyRotationHours is the age at which publish rotates the signed prekey.
	SignedPreKeyRotationHours int `toml:"signed_prekey_rotation_hours" json:"signed_prekey_rotation_hours" yaml:"signed_prekey_rotation_hours"`
	// GraceWindowHours is how long a retired signed prekey still opens handshakes.
	GraceWindowHours int `toml:"grace_window_hours" json:"grace_window_hours" yaml:"grace_window_hours"`
}

// DirectoryConfig points at the prekey directory. An empty URL disables it.
type DirectoryConfig struct {
	URL        string `toml:"url" json:"url" yaml:"url"`
	TimeoutSec int    `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
	Retries    int    `toml:"retries" json:"retries" yaml:"retries"`
	// Listen is the server bind address used by the directory binary.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// BridgeConfig controls callback registration.
type BridgeConfig struct {
	// CallbackBase seeds the callback ids registered by this process.
	CallbackBase uint64 `toml:"callback_base" json:"callback_base" yaml:"callback_base"`
}

// LoggingConfig mirrors logging.Config in file form.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level"`
	Format string `toml:"format" json:"format" yaml:"format"`
	Output string `toml:"output" json:"output" yaml:"output"`
	Path   string `toml:"path" json:"path" yaml:"path"`
}

// DefaultHome is ~/.sigbridge, or ./.sigbridge when no home is known.
func DefaultHome() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".sigbridge")
	}
	return ".sigbridge"
}

// DefaultConfig returns a configuration rooted at DefaultHome.
func DefaultConfig() *Config {
	return &Config{
		Home:     DefaultHome(),
		Identity: IdentityConfig{Device: 1},
		Storage:  StorageConfig{Backend: "file"},
		Keys: KeysConfig{
			PreKeyBatch:               100,
			MinPreKeys:                25,
			SignedPreKeyRotationHours: 7 * 24,
			GraceWindowHours:          7 * 24,
		},
		Directory: DirectoryConfig{TimeoutSec: 10, Retries: 3, Listen: ":8080"},
		Bridge:    BridgeConfig{CallbackBase: 1 << 16},
		Logging:   LoggingConfig{Level: "info", Format: "text", Output: "stderr"},
	}
}

// Path returns the default config file location.
func Path(home string) string {
	return filepath.Join(home, "config.toml")
}

// StoragePath resolves Storage.Path against Home.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.Storage.Backend == "sqlite" {
		return filepath.Join(c.Home, "records.db")
	}
	return filepath.Join(c.Home, "records")
}

// VaultPath resolves Storage.VaultPath against Home.
func (c *Config) VaultPath() string {
	if c.Storage.VaultPath != "" {
		return c.Storage.VaultPath
	}
	return filepath.Join(c.Home, "identity.sealed")
}

// RotationAge is Keys.SignedPreKeyRotationHours as a duration.
func (c *Config) RotationAge() time.Duration {
	return time.Duration(c.Keys.SignedPreKeyRotationHours) * time.Hour
}

// GraceWindow is Keys.GraceWindowHours as a duration.
func (c *Config) GraceWindow() time.Duration {
	return time.Duration(c.Keys.GraceWindowHours) * time.Hour
}

// DirectoryTimeout is Directory.TimeoutSec as a duration.
func (c *Config) DirectoryTimeout() time.Duration {
	return time.Duration(c.Directory.TimeoutSec) * time.Second
}
