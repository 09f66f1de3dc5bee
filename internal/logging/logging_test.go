package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONHandlerRedactsAndTags(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: LevelInfo, Format: FormatJSON, Component: "keys"})
	l.Info("rotated", "spk_id", 3, "private_key", "deadbeef")
	l.Debug("hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "keys", rec["component"])
	assert.Equal(t, "[REDACTED]", rec["private_key"])
	assert.EqualValues(t, 3, rec["spk_id"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestComponentTagsOnce(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter(&buf, &Config{Level: LevelInfo, Format: FormatText})
	Component(root, "session").Info("stored")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("component=")))
	assert.Contains(t, buf.String(), "component=session")
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sigbridge.log")
	l, closer, err := New(&Config{Level: LevelInfo, Output: "file", FilePath: path})
	require.NoError(t, err)
	l.Info("hello")
	require.NoError(t, closer.Close())

	_, _, err = New(&Config{Output: "file"})
	require.Error(t, err)
	_, _, err = New(&Config{Output: "syslog"})
	require.Error(t, err)
}

func TestOrDiscard(t *testing.T) {
	require.NotNil(t, OrDiscard(nil))
	l := Discard()
	require.Same(t, l, OrDiscard(l))
}
