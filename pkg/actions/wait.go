package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/pagekeeper/pkg/driver"
)

// WaitKind names what an action waits for after acting.
type WaitKind string

const (
	WaitNone       WaitKind = "none"
	WaitFixed      WaitKind = "fixed"
	WaitSelector   WaitKind = "selector"
	WaitNavigation WaitKind = "navigation"
	WaitURLChanged WaitKind = "urlChanged"
)

// Default values for waits
const (
	DefaultWaitTimeout  = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	MaxWaitTimeout      = 5 * time.Minute
)

// WaitPolicy is the rule an action follows after acting. The zero value waits
// for nothing.
type WaitPolicy struct {
	Kind WaitKind

	// Delay is the fixed wait for WaitFixed
	Delay time.Duration

	// Selector and State configure WaitSelector. State defaults to "visible".
	Selector string
	State    string

	// Until is the load state for WaitNavigation, domcontentloaded by default
	Until driver.LoadState

	// Timeout bounds the wait, DefaultWaitTimeout when zero
	Timeout time.Duration
}

var validStates = map[string]bool{
	"attached": true,
	"detached": true,
	"visible":  true,
	"hidden":   true,
}

// Validate checks the policy's fields for its kind.
func (w WaitPolicy) Validate() error {
	if w.Timeout < 0 || w.Timeout > MaxWaitTimeout {
		return fmt.Errorf("%w: wait timeout must be between 0 and %s", ErrInvalidParams, MaxWaitTimeout)
	}
	switch w.kind() {
	case WaitNone, WaitURLChanged:
	case WaitFixed:
		if w.Delay < 0 {
			return fmt.Errorf("%w: wait delay must not be negative", ErrInvalidParams)
		}
	case WaitSelector:
		if w.Selector == "" {
			return fmt.Errorf("%w: selector wait requires a selector", ErrInvalidParams)
		}
		if w.State != "" && !validStates[w.State] {
			return fmt.Errorf("%w: invalid state: %s (must be 'attached', 'detached', 'visible', or 'hidden')", ErrInvalidParams, w.State)
		}
	case WaitNavigation:
		if w.Until != "" && !w.Until.Valid() {
			return fmt.Errorf("%w: invalid load state %q", ErrInvalidParams, w.Until)
		}
	default:
		return fmt.Errorf("%w: unknown wait kind %q", ErrInvalidParams, w.Kind)
	}
	return nil
}

// ImpliesNavigation reports whether the policy expects the action to navigate.
func (w WaitPolicy) ImpliesNavigation() bool {
	switch w.kind() {
	case WaitNavigation, WaitURLChanged:
		return true
	}
	return false
}

func (w WaitPolicy) kind() WaitKind {
	if w.Kind == "" {
		return WaitNone
	}
	return w.Kind
}

func (w WaitPolicy) timeout() time.Duration {
	if w.Timeout == 0 {
		return DefaultWaitTimeout
	}
	return w.Timeout
}

func (w WaitPolicy) loadState() driver.LoadState {
	if w.Until == "" {
		return driver.LoadStateDOMContentLoaded
	}
	return w.Until
}

// wait applies the policy to page. beforeURL is the baseline for WaitURLChanged.
func (m *Middleware) wait(ctx context.Context, page driver.Page, w WaitPolicy, beforeURL string) error {
	switch w.kind() {
	case WaitNone:
		return nil

	case WaitFixed:
		return m.sleep(ctx, w.Delay)

	case WaitSelector:
		ctx, cancel := context.WithTimeout(ctx, w.timeout())
		defer cancel()
		state := w.State
		if state == "" {
			state = "visible"
		}
		return page.WaitForSelector(ctx, w.Selector, driver.WaitForSelectorOptions{State: state})

	case WaitNavigation:
		ctx, cancel := context.WithTimeout(ctx, w.timeout())
		defer cancel()
		return page.WaitForLoadState(ctx, w.loadState())

	case WaitURLChanged:
		ctx, cancel := context.WithTimeout(ctx, w.timeout())
		defer cancel()
		return m.waitURLChanged(ctx, page, beforeURL)
	}
	return nil
}

// waitURLChanged polls the page URL until it differs from beforeURL. A failed
// read ends the wait with that error, since it usually means the document
// was replaced.
func (m *Middleware) waitURLChanged(ctx context.Context, page driver.Page, beforeURL string) error {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		current, err := page.URL(ctx)
		if err != nil {
			return err
		}
		if current != beforeURL {
			return nil
		}

		select {
		case <-ctx.Done():
			return driver.WrapKind("wait for url change", driver.KindTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Middleware) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
