package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigbridge/internal/config"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	def := config.DefaultConfig()
	assert.Equal(t, def.Keys, cfg.Keys)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 7*24*time.Hour, cfg.RotationAge())
}

func TestLoad_Formats(t *testing.T) {
	cases := map[string]string{
		"c.toml": `
home = "/tmp/sb"
[identity]
name = "alice"
device = 3
[storage]
backend = "sqlite"
[keys]
prekey_batch = 50
min_prekeys = 10
`,
		"c.yaml": `
home: /tmp/sb
identity:
  name: alice
  device: 3
storage:
  backend: sqlite
keys:
  prekey_batch: 50
  min_prekeys: 10
`,
		"c.json": `{
  "home": "/tmp/sb",
  "identity": {"name": "alice", "device": 3},
  "storage": {"backend": "sqlite"},
  "keys": {"prekey_batch": 50, "min_prekeys": 10}
}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := config.Load(write(t, name, body))
			require.NoError(t, err)
			assert.Equal(t, "alice", cfg.Identity.Name)
			assert.Equal(t, uint32(3), cfg.Identity.Device)
			assert.Equal(t, 50, cfg.Keys.PreKeyBatch)
			assert.Equal(t, 10, cfg.Keys.MinPreKeys)
			assert.Equal(t, filepath.Join("/tmp/sb", "records.db"), cfg.StoragePath())
			// untouched fields keep their defaults
			assert.Equal(t, 3, cfg.Directory.Retries)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SIGBRIDGE_NAME", "bob")
	t.Setenv("SIGBRIDGE_DEVICE", "7")
	t.Setenv("SIGBRIDGE_DIRECTORY_URL", "http://dir.example:8080")
	t.Setenv("SIGBRIDGE_MIN_PREKEYS", "5")
	t.Setenv("SIGBRIDGE_CALLBACK_BASE", "0x100")

	cfg, err := config.Load(write(t, "c.toml", "[identity]\nname = \"alice\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Identity.Name)
	assert.Equal(t, uint32(7), cfg.Identity.Device)
	assert.Equal(t, "http://dir.example:8080", cfg.Directory.URL)
	assert.Equal(t, 5, cfg.Keys.MinPreKeys)
	assert.Equal(t, uint64(0x100), cfg.Bridge.CallbackBase)
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("SIGBRIDGE_PREKEY_BATCH", "lots")
	_, err := config.Load(filepath.Join(t.TempDir(), "c.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "tape"
	cfg.Identity.Device = 0
	cfg.Directory.URL = "dir.example"
	cfg.Logging.Level = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
	for _, want := range []string{"storage.backend", "identity.device", "directory.url", "logging.level"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := config.Load(write(t, "c.ini", "x=1"))
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	for _, ext := range []string{".toml", ".yaml", ".json"} {
		t.Run(ext, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Home = t.TempDir()
			cfg.Identity.Name = "carol"
			cfg.Directory.URL = "http://127.0.0.1:9000"

			path := filepath.Join(cfg.Home, "config"+ext)
			require.NoError(t, config.Save(cfg, path))
			got, err := config.Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, got)
		})
	}
}

func TestLoggingConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	lc := cfg.LoggingConfig("directory")
	assert.Equal(t, "directory", lc.Component)
	assert.Equal(t, "stderr", lc.Output)
}
