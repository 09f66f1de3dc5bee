package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, home string, args ...string) string {
	t.Helper()
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--home", home, "-p", "correct horse battery"}, args...))
	require.NoError(t, execute(context.Background(), root), out.String())
	return out.String()
}

func TestCLI_BundleFileExchange(t *testing.T) {
	aliceHome, bobHome := t.TempDir(), t.TempDir()
	scratch := t.TempDir()

	assert.Contains(t, run(t, bobHome, "init"), "Fingerprint:")
	assert.Contains(t, run(t, aliceHome, "init"), "Fingerprint:")

	bundle := filepath.Join(scratch, "bob.json")
	require.NoError(t, os.WriteFile(bundle, []byte(run(t, bobHome, "bundle")), 0o600))

	assert.Contains(t, run(t, aliceHome, "session", "bob", "--bundle", bundle), "Session established with bob.1")

	msg := filepath.Join(scratch, "msg.json")
	require.NoError(t, os.WriteFile(msg, []byte(run(t, aliceHome, "encrypt", "bob", "hi bob")), 0o600))

	assert.Contains(t, run(t, bobHome, "decrypt", "alice", msg), "[alice.1] hi bob")
	assert.Contains(t, run(t, bobHome, "sessions"), "alice.1")

	run(t, bobHome, "reset", "alice")
	assert.NotContains(t, run(t, bobHome, "sessions"), "alice.1")
}

func TestCLI_PublishNeedsDirectory(t *testing.T) {
	home := t.TempDir()
	run(t, home, "init")

	root := newRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--home", home, "-p", "correct horse battery", "publish"})
	assert.Error(t, execute(context.Background(), root))
}
