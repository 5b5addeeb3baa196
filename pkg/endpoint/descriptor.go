// Package endpoint normalizes remote browser addresses into connection descriptors.
//
// A descriptor is built fresh for every connect or reconnect attempt and is
// never persisted. Building accepts loosely formatted input such as
// "browser.example.com", "https://browser.example.com?token=abc" or
// "ws://localhost:3000" and always yields a ws/wss URL.
package endpoint

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidEndpoint is returned when an endpoint is empty, has no host, or
// cannot be turned into a valid websocket URL.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Query parameter names injected into descriptors.
const (
	ParamToken = "token"

	// The session id is carried under two names because remote providers
	// disagree on which one they read.
	ParamSessionID      = "sessionId"
	ParamSessionIDShort = "session"
)

const defaultScheme = "wss"

// Options carries the optional credentials for a descriptor.
type Options struct {
	// Token is injected as ?token= unless the endpoint already carries one
	Token string

	// SessionID attaches to an existing remote session when set
	SessionID string
}

// Descriptor is a normalized websocket address of a remote browser.
type Descriptor struct {
	Scheme string
	Host   string
	Path   string
	Query  url.Values
}

// URL returns the descriptor as a *url.URL.
func (d *Descriptor) URL() *url.URL {
	return &url.URL{
		Scheme:   d.Scheme,
		Host:     d.Host,
		Path:     d.Path,
		RawQuery: d.Query.Encode(),
	}
}

// String returns the full websocket URL.
func (d *Descriptor) String() string {
	return d.URL().String()
}

// Token returns the token query parameter, if any.
func (d *Descriptor) Token() string {
	return d.Query.Get(ParamToken)
}

// SessionID returns the session id query parameter, if any.
func (d *Descriptor) SessionID() string {
	if id := d.Query.Get(ParamSessionID); id != "" {
		return id
	}
	return d.Query.Get(ParamSessionIDShort)
}

// Redacted returns the URL with the token masked, for logging.
func (d *Descriptor) Redacted() string {
	u := d.URL()
	if d.Query.Has(ParamToken) {
		q := u.Query()
		q.Set(ParamToken, "xxxxx")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Build turns a raw endpoint into a descriptor.
func Build(rawEndpoint string, opts Options) (*Descriptor, error) {
	raw := strings.TrimSpace(rawEndpoint)
	if raw == "" {
		return nil, fmt.Errorf("%w: endpoint is empty", ErrInvalidEndpoint)
	}

	if !hasHost(raw) {
		return nil, fmt.Errorf("%w: no host in %q", ErrInvalidEndpoint, raw)
	}

	normalized := normalizeScheme(raw)

	withParams, err := injectParams(normalized, opts)
	if err != nil {
		// Host was already confirmed above, so plain concatenation is safe.
		withParams = appendParams(normalized, opts)
	}

	u, err := url.Parse(withParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: no host in %q", ErrInvalidEndpoint, withParams)
	}

	return &Descriptor{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   u.Path,
		Query:  u.Query(),
	}, nil
}

// hasHost reports whether raw names something resolvable: a URL with a host,
// a dotted name, or localhost.
func hasHost(raw string) bool {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return true
	}
	return strings.Contains(raw, ".") || strings.Contains(strings.ToLower(raw), "localhost")
}

func normalizeScheme(raw string) string {
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return defaultScheme + "://" + raw
	}
	switch strings.ToLower(scheme) {
	case "http":
		return "ws://" + rest
	case "https":
		return "wss://" + rest
	default:
		return strings.ToLower(scheme) + "://" + rest
	}
}

func injectParams(normalized string, opts Options) (string, error) {
	u, err := url.Parse(normalized)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if opts.Token != "" && !q.Has(ParamToken) {
		q.Set(ParamToken, opts.Token)
	}
	if opts.SessionID != "" {
		q.Set(ParamSessionID, opts.SessionID)
		q.Set(ParamSessionIDShort, opts.SessionID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func appendParams(normalized string, opts Options) string {
	var params []string
	if opts.Token != "" && !strings.Contains(normalized, ParamToken+"=") {
		params = append(params, ParamToken+"="+url.QueryEscape(opts.Token))
	}
	if opts.SessionID != "" {
		id := url.QueryEscape(opts.SessionID)
		params = append(params, ParamSessionID+"="+id, ParamSessionIDShort+"="+id)
	}
	if len(params) == 0 {
		return normalized
	}
	sep := "?"
	if strings.Contains(normalized, "?") {
		sep = "&"
	}
	return normalized + sep + strings.Join(params, "&")
}
