// Package keeper assembles a session registry, a navigation engine and the
// action middleware from browser settings.
//
//	k, err := keeper.NewRemote(config.GetBrowser().Settings(), keeper.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer k.Close()
//
//	ps, err := k.Page(ctx, "")
//	res := k.Actions.Click(ctx, actions.ClickParams{SessionID: ps.SessionID, Selector: "#submit"})
package keeper

import (
	"context"
	"fmt"

	"github.com/entrhq/pagekeeper/pkg/actions"
	"github.com/entrhq/pagekeeper/pkg/config"
	"github.com/entrhq/pagekeeper/pkg/driver"
	"github.com/entrhq/pagekeeper/pkg/driver/pwdriver"
	"github.com/entrhq/pagekeeper/pkg/logging"
	"github.com/entrhq/pagekeeper/pkg/navigation"
	"github.com/entrhq/pagekeeper/pkg/session"
)

// Keeper holds the wired components. The fields are safe to use directly.
type Keeper struct {
	Registry *session.Registry
	Engine   *navigation.Engine
	Actions  *actions.Middleware

	settings config.BrowserSettings
	logger   *logging.Logger
}

type options struct {
	logger   *logging.Logger
	recovery navigation.RecoveryPolicy
	selector navigation.PageSelector
}

// Option configures New.
type Option func(*options)

// WithLogger sets the parent logger. Each component logs under its own name.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecovery replaces the fixed recovery delay from the settings.
func WithRecovery(p navigation.RecoveryPolicy) Option {
	return func(o *options) { o.recovery = p }
}

// WithPageSelector replaces the default last-page selection.
func WithPageSelector(s navigation.PageSelector) Option {
	return func(o *options) { o.selector = s }
}

// New wires the components on top of d.
func New(d driver.Driver, settings config.BrowserSettings, opts ...Option) (*Keeper, error) {
	o := options{logger: logging.Discard("pagekeeper")}
	for _, opt := range opts {
		opt(&o)
	}
	if o.recovery == nil {
		o.recovery = navigation.FixedDelay{Delay: settings.RecoveryDelay}
	}
	if o.selector == nil {
		o.selector = navigation.LastPage
	}

	classifier, err := settings.Classifier()
	if err != nil {
		return nil, err
	}

	registry := session.NewRegistry(d,
		session.WithLogger(o.logger.With("session")),
		session.WithMaxSessions(settings.MaxSessions),
		session.WithProbeTimeout(settings.ProbeTimeout),
		session.WithCloseConcurrency(settings.CloseConcurrency),
	)

	engine := navigation.NewEngine(
		navigation.WithRecovery(o.recovery),
		navigation.WithPageSelector(o.selector),
		navigation.WithClassifier(classifier),
		navigation.WithProbeTimeout(settings.ProbeTimeout),
		navigation.WithLogger(o.logger.With("navigation")),
	)

	locator := &navigation.Locator{Selector: o.selector, ResponsiveTimeout: settings.ResponsiveTimeout}
	middleware := actions.New(registry, engine,
		actions.WithLogger(o.logger.With("actions")),
		actions.WithLocator(locator),
		actions.WithClassifier(classifier),
		actions.WithComponentAnalysis(settings.ComponentAnalysis),
	)

	return &Keeper{
		Registry: registry,
		Engine:   engine,
		Actions:  middleware,
		settings: settings,
		logger:   o.logger,
	}, nil
}

// NewRemote wires the components on a Playwright driver configured from
// settings.
func NewRemote(settings config.BrowserSettings, opts ...Option) (*Keeper, error) {
	o := options{logger: logging.Discard("pagekeeper")}
	for _, opt := range opts {
		opt(&o)
	}

	classifier, err := settings.Classifier()
	if err != nil {
		return nil, err
	}
	d := pwdriver.New(
		pwdriver.WithConnectTimeout(settings.ConnectTimeout),
		pwdriver.WithActionTimeout(settings.ActionTimeout),
		pwdriver.WithClassifier(classifier),
		pwdriver.WithLogger(o.logger.With("pwdriver")),
	)
	return New(d, settings, opts...)
}

// Page returns a usable page, reusing sessionID when given. New sessions
// connect to the configured endpoint.
func (k *Keeper) Page(ctx context.Context, sessionID string) (session.PageSession, error) {
	ps, err := k.Registry.GetOrCreatePageSession(ctx, session.PageRequest{
		SessionID: sessionID,
		Endpoint:  k.settings.Endpoint,
		Token:     k.settings.Token,
	})
	if err != nil {
		return session.PageSession{}, fmt.Errorf("no page for session %q: %w", sessionID, err)
	}
	return ps, nil
}

// Close closes every session and stops the driver.
func (k *Keeper) Close() error {
	k.logger.Infof("shutting down")
	return k.Registry.Shutdown()
}
