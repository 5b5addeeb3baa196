package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by ApplyEnv.
const (
	EnvEndpoint          = "PAGEKEEPER_ENDPOINT"
	EnvToken             = "PAGEKEEPER_TOKEN"
	EnvRecoveryDelay     = "PAGEKEEPER_RECOVERY_DELAY"
	EnvProbeTimeout      = "PAGEKEEPER_PROBE_TIMEOUT"
	EnvMaxSessions       = "PAGEKEEPER_MAX_SESSIONS"
	EnvComponentAnalysis = "PAGEKEEPER_COMPONENT_ANALYSIS"
	EnvDestroyedPatterns = "PAGEKEEPER_CONTEXT_DESTROYED_PATTERNS"
)

// LookupFunc reports the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// With no arguments it loads ./.env.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// EnvLookup returns a lookup over the process environment layered on top of
// the given .env files. The process environment wins. Missing files are
// skipped.
func EnvLookup(files ...string) (LookupFunc, error) {
	fromFiles := make(map[string]string)
	for _, f := range files {
		values, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
		for k, v := range values {
			if _, seen := fromFiles[k]; !seen {
				fromFiles[k] = v
			}
		}
	}

	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fromFiles[key]
		return v, ok
	}, nil
}

// ApplyEnv overrides settings from PAGEKEEPER_* variables. Empty values are
// ignored.
func (s *BrowserSection) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	if v, ok := get(EnvEndpoint); ok {
		next.Endpoint = v
	}
	if v, ok := get(EnvToken); ok {
		next.Token = v
	}
	if v, ok := get(EnvRecoveryDelay); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRecoveryDelay, err)
		}
		next.RecoveryDelay = d
	}
	if v, ok := get(EnvProbeTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvProbeTimeout, err)
		}
		next.ProbeTimeout = d
	}
	if v, ok := get(EnvMaxSessions); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxSessions, err)
		}
		next.MaxSessions = n
	}
	if v, ok := get(EnvComponentAnalysis); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvComponentAnalysis, err)
		}
		next.ComponentAnalysis = b
	}
	if v, ok := get(EnvDestroyedPatterns); ok {
		var patterns []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		next.ContextDestroyedPatterns = patterns
	}

	s.settings = next
	return nil
}
