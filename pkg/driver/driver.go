// Package driver defines the boundary between pagekeeper and a remote browser.
//
// The only capability reached outside the process is "connect with a
// descriptor, get back a connection". Everything else is expressed as
// operations on the returned Connection and its Pages. Implementations wrap
// their native errors in *Error so callers can branch on Kind instead of
// matching message text.
package driver

import (
	"context"

	"github.com/entrhq/pagekeeper/pkg/endpoint"
)

// Driver opens connections to remote browsers.
type Driver interface {
	Connect(ctx context.Context, d *endpoint.Descriptor) (Connection, error)
}

// Connection is a live link to one remote browser. It is exclusively owned
// by a single session.
type Connection interface {
	// IsConnected reports the connection's own view of its liveness
	IsConnected() bool

	// Probe performs a cheap round trip to the browser
	Probe(ctx context.Context) error

	// Pages lists open pages, oldest first
	Pages(ctx context.Context) ([]Page, error)

	// NewPage opens a new page on the connection
	NewPage(ctx context.Context) (Page, error)

	Close() error
}

// Page is an opaque handle to one open tab. Any call may fail with
// KindContextDestroyed when a navigation has replaced the document.
type Page interface {
	// URL reads the current URL from inside the page. Unlike a cached URL,
	// this fails when the execution context is gone.
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, expression string) (any, error)

	Click(ctx context.Context, selector string, opts ClickOptions) error
	Fill(ctx context.Context, selector, value string, opts FillOptions) error
	SetChecked(ctx context.Context, selector string, checked bool) error
	SetInputFiles(ctx context.Context, selector string, paths []string) error
	Press(ctx context.Context, selector, key string) error
	Goto(ctx context.Context, url string, opts GotoOptions) error

	WaitForSelector(ctx context.Context, selector string, opts WaitForSelectorOptions) error
	WaitForLoadState(ctx context.Context, state LoadState) error

	IsClosed() bool
	Close() error
}

// ClickOptions configures element clicking behavior.
type ClickOptions struct {
	// Button specifies which mouse button to use (left, right, middle)
	Button string

	// ClickCount is the number of times to click (1 for single, 2 for double)
	ClickCount int
}

// FillOptions configures form input filling.
type FillOptions struct {
	// Force skips actionability checks
	Force bool
}

// GotoOptions configures page navigation.
type GotoOptions struct {
	// WaitUntil is the load state that ends the navigation call
	WaitUntil LoadState

	// Referer header value for the navigation request
	Referer string

	// Headers are extra HTTP headers sent with every request from the page
	Headers map[string]string
}

// WaitForSelectorOptions configures waiting for an element.
type WaitForSelectorOptions struct {
	// State to wait for: "attached", "detached", "visible", "hidden"
	State string
}

// LoadState names a document readiness milestone.
type LoadState string

const (
	LoadStateLoad             LoadState = "load"
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

// Valid reports whether s is a known load state.
func (s LoadState) Valid() bool {
	switch s {
	case LoadStateLoad, LoadStateDOMContentLoaded, LoadStateNetworkIdle:
		return true
	}
	return false
}
