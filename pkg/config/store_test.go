package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileStore(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		s, err := NewFileStore(path)
		require.NoError(t, err)
		assert.Equal(t, path, s.Path())
		assert.False(t, s.IsModified())

		all, err := s.GetAll()
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("default path", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		want, err := DefaultPath()
		require.NoError(t, err)

		s, err := NewFileStore("")
		require.NoError(t, err)
		assert.Equal(t, want, s.Path())
		assert.True(t, strings.HasSuffix(want, filepath.Join(".pagekeeper", "config.json")))
	})

	t.Run("existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version":"1","sections":{"browser":{"endpoint":"ws://b:9222"}}}`), 0o600))

		s, err := NewFileStore(path)
		require.NoError(t, err)
		section, err := s.GetSection("browser")
		require.NoError(t, err)
		assert.Equal(t, "ws://b:9222", section["endpoint"])
	})

	t.Run("invalid json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{invalid json}"), 0o600))

		_, err := NewFileStore(path)
		assert.Error(t, err)
	})
}

func TestFileStoreSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, s.SetSection("browser", map[string]any{"endpoint": "ws://b:9222", "max_sessions": 3}))
	assert.True(t, s.IsModified())
	require.NoError(t, s.Save())
	assert.False(t, s.IsModified())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, storeVersion, doc.Version)
	assert.Equal(t, "ws://b:9222", doc.Sections["browser"]["endpoint"])

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp file left behind")

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	section, err := reopened.GetSection("browser")
	require.NoError(t, err)
	assert.EqualValues(t, 3, section["max_sessions"])
}

func TestFileStoreCopies(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	in := map[string]any{"key": "value"}
	require.NoError(t, s.SetSection("a", in))
	in["key"] = "changed"

	out, err := s.GetSection("a")
	require.NoError(t, err)
	assert.Equal(t, "value", out["key"])
	out["key"] = "changed"

	again, err := s.GetSection("a")
	require.NoError(t, err)
	assert.Equal(t, "value", again["key"])

	all := map[string]map[string]any{"b": {"k": "v"}}
	require.NoError(t, s.SetAll(all))
	all["b"]["k"] = "changed"

	got, err := s.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]any{"b": {"k": "v"}}, got)
	got["b"]["k"] = "changed"

	_, err = s.GetSection("a")
	require.NoError(t, err)
	section, err := s.GetSection("b")
	require.NoError(t, err)
	assert.Equal(t, "v", section["k"])
}
