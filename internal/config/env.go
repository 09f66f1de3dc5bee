package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvPrefix prefixes every override variable.
const EnvPrefix = "SIGBRIDGE_"

// ApplyEnvOverrides overlays SIGBRIDGE_* variables onto c.
func (c *Config) ApplyEnvOverrides() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("HOME", &c.Home)
	str("NAME", &c.Identity.Name)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("STORAGE_PATH", &c.Storage.Path)
	str("VAULT_PATH", &c.Storage.VaultPath)
	str("DIRECTORY_URL", &c.Directory.URL)
	str("DIRECTORY_LISTEN", &c.Directory.Listen)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_OUTPUT", &c.Logging.Output)
	str("LOG_PATH", &c.Logging.Path)

	for name, dst := range map[string]*int{
		"PREKEY_BATCH":       &c.Keys.PreKeyBatch,
		"MIN_PREKEYS":        &c.Keys.MinPreKeys,
		"SPK_ROTATION_HOURS": &c.Keys.SignedPreKeyRotationHours,
		"GRACE_WINDOW_HOURS": &c.Keys.GraceWindowHours,
		"DIRECTORY_TIMEOUT":  &c.Directory.TimeoutSec,
		"DIRECTORY_RETRIES":  &c.Directory.Retries,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "DEVICE"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("config: %sDEVICE: %w", EnvPrefix, err)
		}
		c.Identity.Device = uint32(n)
	}
	if v, ok := os.LookupEnv(EnvPrefix + "CALLBACK_BASE"); ok {
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return fmt.Errorf("config: %sCALLBACK_BASE: %w", EnvPrefix, err)
		}
		c.Bridge.CallbackBase = n
	}
	return nil
}
