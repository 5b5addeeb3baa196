// Package pwdriver implements driver.Driver on top of Playwright by attaching
// to remote Chromium browsers over the Chrome DevTools Protocol.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagekeeper/pkg/driver"
	"github.com/entrhq/pagekeeper/pkg/endpoint"
	"github.com/entrhq/pagekeeper/pkg/logging"
)

// Default values for driver operations
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultActionTimeout  = 30 * time.Second
)

// Driver connects to remote browsers through a local Playwright driver process.
type Driver struct {
	mu             sync.Mutex
	playwright     *playwright.Playwright
	initialized    bool
	install        bool
	connectTimeout time.Duration
	actionTimeout  time.Duration
	classifier     *driver.Classifier
	logger         *logging.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithConnectTimeout bounds ConnectOverCDP when the context has no deadline.
func WithConnectTimeout(d time.Duration) Option {
	return func(drv *Driver) { drv.connectTimeout = d }
}

// WithActionTimeout bounds page operations when the context has no deadline.
func WithActionTimeout(d time.Duration) Option {
	return func(drv *Driver) { drv.actionTimeout = d }
}

// WithClassifier replaces the default error classification table.
func WithClassifier(c *driver.Classifier) Option {
	return func(drv *Driver) { drv.classifier = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(drv *Driver) { drv.logger = l }
}

// WithInstall controls whether Initialize downloads the Playwright driver.
func WithInstall(install bool) Option {
	return func(drv *Driver) { drv.install = install }
}

// New creates a driver. Initialize is called lazily on first Connect.
func New(opts ...Option) *Driver {
	d := &Driver{
		install:        true,
		connectTimeout: DefaultConnectTimeout,
		actionTimeout:  DefaultActionTimeout,
		classifier:     driver.DefaultClassifier(),
		logger:         logging.Discard("pwdriver"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Initialize starts the Playwright driver process.
func (d *Driver) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	// Discard driver output so it does not interleave with the host's output
	opts := &playwright.RunOptions{
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
		SkipInstallBrowsers: true,
	}

	if d.install {
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	d.playwright = pw
	d.initialized = true
	d.logger.Infof("playwright driver started")
	return nil
}

// Connect attaches to the browser behind the descriptor.
func (d *Driver) Connect(ctx context.Context, desc *endpoint.Descriptor) (driver.Connection, error) {
	if desc == nil {
		return nil, errors.New("descriptor is required")
	}
	if err := d.Initialize(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	pw := d.playwright
	d.mu.Unlock()

	connectOpts := playwright.BrowserTypeConnectOverCDPOptions{
		Timeout: timeoutMs(ctx, d.connectTimeout),
	}

	browser, err := call(ctx, func() (playwright.Browser, error) {
		return pw.Chromium.ConnectOverCDP(desc.String(), connectOpts)
	})
	if err != nil {
		return nil, d.mapErr("connect", err, driver.KindConnectionLost)
	}

	d.logger.Infof("connected to %s", desc.Redacted())
	return &connection{browser: browser, drv: d}, nil
}

// Shutdown stops the Playwright driver process.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized || d.playwright == nil {
		return nil
	}
	if err := d.playwright.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	d.initialized = false
	d.playwright = nil
	return nil
}

// mapErr wraps a Playwright error in a classified driver.Error. targetClosed
// is the kind to report for playwright.ErrTargetClosed, which means a lost
// page at page level and a lost browser at connection level.
func (d *Driver) mapErr(op string, err error, targetClosed driver.Kind) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playwright.ErrTargetClosed):
		return driver.WrapKind(op, targetClosed, err)
	case errors.Is(err, playwright.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return driver.WrapKind(op, driver.KindTimeout, err)
	default:
		return driver.Wrap(op, err, d.classifier)
	}
}

// timeoutMs converts the context deadline, or fallback, to Playwright milliseconds.
func timeoutMs(ctx context.Context, fallback time.Duration) *float64 {
	timeout := fallback
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout < time.Millisecond {
			timeout = time.Millisecond
		}
	}
	return playwright.Float(float64(timeout.Milliseconds()))
}

// call runs fn and returns early if ctx ends first. Playwright calls carry
// their own timeouts, so an abandoned fn still finishes on its own.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// do is call for functions without a result value.
func do(ctx context.Context, fn func() error) error {
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
