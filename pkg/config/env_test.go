package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(EnvEndpoint)
	t.Setenv(EnvToken, "from-process")
	path := writeEnvFile(t, "PAGEKEEPER_ENDPOINT=ws://file:9222\nPAGEKEEPER_TOKEN=from-file\n")

	require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	t.Cleanup(func() { os.Unsetenv(EnvEndpoint) })

	assert.Equal(t, "ws://file:9222", os.Getenv(EnvEndpoint))
	assert.Equal(t, "from-process", os.Getenv(EnvToken), "process environment wins")
}

func TestLoadEnvMalformedFile(t *testing.T) {
	path := writeEnvFile(t, "PAGEKEEPER_ENDPOINT='unterminated\n")
	assert.Error(t, LoadEnv(path))
}

func TestEnvLookup(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvToken, "from-process")
	first := writeEnvFile(t, "PAGEKEEPER_ENDPOINT=ws://first:9222\n")
	second := writeEnvFile(t, "PAGEKEEPER_ENDPOINT=ws://second:9222\nPAGEKEEPER_MAX_SESSIONS=3\n")

	lookup, err := EnvLookup(first, filepath.Join(t.TempDir(), "missing.env"), second)
	require.NoError(t, err)

	// clearEnv sets empty values, which shadow the files.
	os.Unsetenv(EnvEndpoint)
	os.Unsetenv(EnvMaxSessions)

	v, ok := lookup(EnvEndpoint)
	assert.True(t, ok)
	assert.Equal(t, "ws://first:9222", v, "earlier files win")

	v, _ = lookup(EnvMaxSessions)
	assert.Equal(t, "3", v)

	v, _ = lookup(EnvToken)
	assert.Equal(t, "from-process", v)

	_, ok = lookup("PAGEKEEPER_UNSET")
	assert.False(t, ok)
}

func TestBrowserSectionApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvEndpoint:          " wss://env.example.com ",
		EnvToken:             "tok",
		EnvRecoveryDelay:     "2s",
		EnvProbeTimeout:      "750ms",
		EnvMaxSessions:       "4",
		EnvComponentAnalysis: "true",
		EnvDestroyedPatterns: "*a*, ,*b*",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	s := NewBrowserSection()
	require.NoError(t, s.ApplyEnv(lookup))

	got := s.Settings()
	assert.Equal(t, "wss://env.example.com", got.Endpoint)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, 2*time.Second, got.RecoveryDelay)
	assert.Equal(t, 750*time.Millisecond, got.ProbeTimeout)
	assert.Equal(t, 4, got.MaxSessions)
	assert.True(t, got.ComponentAnalysis)
	assert.Equal(t, []string{"*a*", "*b*"}, got.ContextDestroyedPatterns)

	t.Run("empty values are ignored", func(t *testing.T) {
		s := NewBrowserSection()
		require.NoError(t, s.ApplyEnv(func(string) (string, bool) { return "", true }))
		assert.Equal(t, DefaultBrowserSettings(), s.Settings())
	})

	t.Run("invalid value leaves settings untouched", func(t *testing.T) {
		s := NewBrowserSection()
		err := s.ApplyEnv(func(key string) (string, bool) {
			switch key {
			case EnvEndpoint:
				return "ws://x", true
			case EnvRecoveryDelay:
				return "later", true
			}
			return "", false
		})
		assert.ErrorContains(t, err, EnvRecoveryDelay)
		assert.Empty(t, s.Settings().Endpoint)
	})
}
