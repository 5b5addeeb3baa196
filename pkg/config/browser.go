package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/entrhq/pagekeeper/pkg/driver"
)

const (
	// SectionIDBrowser is the identifier for the browser settings section
	SectionIDBrowser = "browser"
)

// BrowserSettings is a snapshot of the browser section.
type BrowserSettings struct {
	// Endpoint is the default remote browser URL, ws(s):// or http(s)://
	Endpoint string

	// Token is sent as the endpoint's token query parameter
	Token string

	RecoveryDelay     time.Duration
	ProbeTimeout      time.Duration
	ResponsiveTimeout time.Duration
	ActionTimeout     time.Duration
	ConnectTimeout    time.Duration

	// MaxSessions caps live sessions, 0 for no limit
	MaxSessions      int
	CloseConcurrency int

	// ComponentAnalysis adds per-component URL deltas to action results
	ComponentAnalysis bool

	// ContextDestroyedPatterns are extra glob patterns for messages that mean
	// the page navigated away
	ContextDestroyedPatterns []string
}

// DefaultBrowserSettings returns the settings a fresh section starts with.
func DefaultBrowserSettings() BrowserSettings {
	return BrowserSettings{
		RecoveryDelay:     5 * time.Second,
		ProbeTimeout:      5 * time.Second,
		ResponsiveTimeout: 2 * time.Second,
		ActionTimeout:     30 * time.Second,
		ConnectTimeout:    30 * time.Second,
		CloseConcurrency:  4,
	}
}

// BrowserSection holds remote browser and recovery settings.
type BrowserSection struct {
	mu       sync.RWMutex
	settings BrowserSettings
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	return &BrowserSection{settings: DefaultBrowserSettings()}
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Remote browser endpoint, session limits and navigation recovery timing. Durations use Go syntax such as 5s or 250ms."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := s.settings
	return map[string]any{
		"endpoint":                   b.Endpoint,
		"token":                      b.Token,
		"recovery_delay":             b.RecoveryDelay.String(),
		"probe_timeout":              b.ProbeTimeout.String(),
		"responsive_timeout":         b.ResponsiveTimeout.String(),
		"action_timeout":             b.ActionTimeout.String(),
		"connect_timeout":            b.ConnectTimeout.String(),
		"max_sessions":               b.MaxSessions,
		"close_concurrency":          b.CloseConcurrency,
		"component_analysis":         b.ComponentAnalysis,
		"context_destroyed_patterns": slices.Clone(b.ContextDestroyedPatterns),
	}
}

// SetData updates the configuration from the provided data. Keys that are
// absent keep their current value.
func (s *BrowserSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	if v, ok := data["endpoint"].(string); ok {
		next.Endpoint = v
	}
	if v, ok := data["token"].(string); ok {
		next.Token = v
	}
	if v, ok := data["component_analysis"].(bool); ok {
		next.ComponentAnalysis = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"recovery_delay", &next.RecoveryDelay},
		{"probe_timeout", &next.ProbeTimeout},
		{"responsive_timeout", &next.ResponsiveTimeout},
		{"action_timeout", &next.ActionTimeout},
		{"connect_timeout", &next.ConnectTimeout},
	}
	for _, d := range durations {
		raw, ok := data[d.key]
		if !ok {
			continue
		}
		v, err := toDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"max_sessions", &next.MaxSessions},
		{"close_concurrency", &next.CloseConcurrency},
	}
	for _, n := range ints {
		raw, ok := data[n.key]
		if !ok {
			continue
		}
		v, err := toInt(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", n.key, err)
		}
		*n.dst = v
	}

	if raw, ok := data["context_destroyed_patterns"]; ok {
		patterns, err := toStrings(raw)
		if err != nil {
			return fmt.Errorf("context_destroyed_patterns: %w", err)
		}
		next.ContextDestroyedPatterns = patterns
	}

	s.settings = next
	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := s.settings
	var errs []error
	if b.RecoveryDelay < 0 {
		errs = append(errs, errors.New("recovery_delay must not be negative"))
	}
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"probe_timeout", b.ProbeTimeout},
		{"responsive_timeout", b.ResponsiveTimeout},
		{"action_timeout", b.ActionTimeout},
		{"connect_timeout", b.ConnectTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", t.name))
		}
	}
	if b.MaxSessions < 0 {
		errs = append(errs, errors.New("max_sessions must not be negative"))
	}
	if b.CloseConcurrency < 1 {
		errs = append(errs, errors.New("close_concurrency must be at least 1"))
	}
	if _, err := s.classifierLocked(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = DefaultBrowserSettings()
}

// Settings returns a copy of the current settings.
func (s *BrowserSection) Settings() BrowserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.settings
	out.ContextDestroyedPatterns = slices.Clone(s.settings.ContextDestroyedPatterns)
	return out
}

// SetEndpoint sets the default endpoint and token.
func (s *BrowserSection) SetEndpoint(endpoint, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Endpoint = endpoint
	s.settings.Token = token
}

// Classifier returns the default error classifier extended with the
// configured context-destroyed patterns.
func (s *BrowserSection) Classifier() (*driver.Classifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classifierLocked()
}

func (s *BrowserSection) classifierLocked() (*driver.Classifier, error) {
	return s.settings.Classifier()
}

// Classifier returns the default error classifier extended with
// ContextDestroyedPatterns.
func (b BrowserSettings) Classifier() (*driver.Classifier, error) {
	if len(b.ContextDestroyedPatterns) == 0 {
		return driver.DefaultClassifier(), nil
	}
	c, err := driver.DefaultClassifier().WithPatterns(driver.KindContextDestroyed, b.ContextDestroyedPatterns...)
	if err != nil {
		return nil, fmt.Errorf("context_destroyed_patterns: %w", err)
	}
	return c, nil
}

// toDuration accepts Go duration strings and JSON numbers in milliseconds.
func toDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case string:
		return time.ParseDuration(t)
	case float64:
		return time.Duration(t * float64(time.Millisecond)), nil
	case int:
		return time.Duration(t) * time.Millisecond, nil
	case time.Duration:
		return t, nil
	}
	return 0, fmt.Errorf("unsupported duration value %v (%T)", v, v)
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("%v is not a whole number", t)
		}
		return int(t), nil
	case string:
		return strconv.Atoi(t)
	}
	return 0, fmt.Errorf("unsupported integer value %v (%T)", v, v)
}

func toStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return slices.Clone(t), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("unsupported pattern %v (%T)", item, item)
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported pattern list %v (%T)", v, v)
}
