package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/pagekeeper/pkg/driver"
	"github.com/entrhq/pagekeeper/pkg/logging"
	"github.com/entrhq/pagekeeper/pkg/navigation"
	"github.com/entrhq/pagekeeper/pkg/session"
	"github.com/entrhq/pagekeeper/pkg/urlchange"
)

// DefaultReadTimeout bounds the before/after URL and title reads.
const DefaultReadTimeout = 5 * time.Second

// Middleware runs click, fill and navigate actions against registry
// sessions and recovers the page when an action navigates.
type Middleware struct {
	registry     *session.Registry
	engine       *navigation.Engine
	locator      *navigation.Locator
	classifier   *driver.Classifier
	detect       urlchange.Options
	readTimeout  time.Duration
	pollInterval time.Duration
	now          func() time.Time
	logger       *logging.Logger
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Middleware) { m.logger = l }
}

// WithLocator sets the locator used when a session's stored page is closed.
func WithLocator(l *navigation.Locator) Option {
	return func(m *Middleware) { m.locator = l }
}

// WithClassifier sets the table used for action errors that carry no driver kind.
func WithClassifier(c *driver.Classifier) Option {
	return func(m *Middleware) { m.classifier = c }
}

// WithComponentAnalysis reports per-component URL deltas in result details.
func WithComponentAnalysis(enabled bool) Option {
	return func(m *Middleware) { m.detect.CheckComponents = enabled }
}

// WithReadTimeout bounds URL and title reads.
func WithReadTimeout(d time.Duration) Option {
	return func(m *Middleware) { m.readTimeout = d }
}

// WithPollInterval sets how often WaitURLChanged reads the URL.
func WithPollInterval(d time.Duration) Option {
	return func(m *Middleware) { m.pollInterval = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Middleware) { m.now = now }
}

// New creates a middleware acting on sessions in registry and recovering
// pages with engine.
func New(registry *session.Registry, engine *navigation.Engine, opts ...Option) *Middleware {
	m := &Middleware{
		registry:     registry,
		engine:       engine,
		locator:      navigation.NewLocator(),
		classifier:   driver.DefaultClassifier(),
		readTimeout:  DefaultReadTimeout,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
		logger:       logging.Discard("actions"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Click clicks the element matching params.Selector.
func (m *Middleware) Click(ctx context.Context, params ClickParams) ActionResult {
	details := map[string]any{DetailSelector: params.Selector}
	if err := params.validate(); err != nil {
		return failed(ActionClick, details, err)
	}

	opts := driver.ClickOptions{Button: params.Button, ClickCount: params.ClickCount}
	if opts.ClickCount == 0 {
		opts.ClickCount = 1
	}

	return m.run(ctx, ActionClick, params.SessionID, params.Wait, details, func(ctx context.Context, page driver.Page) error {
		return page.Click(ctx, params.Selector, opts)
	})
}

// Fill sets the form field matching params.Selector.
func (m *Middleware) Fill(ctx context.Context, params FillParams) ActionResult {
	details := map[string]any{
		DetailSelector:  params.Selector,
		DetailFieldType: string(params.fieldType()),
	}
	if err := params.validate(); err != nil {
		return failed(ActionFill, details, err)
	}

	return m.run(ctx, ActionFill, params.SessionID, params.Wait, details, func(ctx context.Context, page driver.Page) error {
		switch params.fieldType() {
		case FieldCheckbox:
			return page.SetChecked(ctx, params.Selector, params.Checked)
		case FieldRadio:
			return page.SetChecked(ctx, params.Selector, true)
		case FieldFile:
			return page.SetInputFiles(ctx, params.Selector, params.FilePaths)
		}

		fillOpts := driver.FillOptions{Force: params.Force}
		if params.Clear {
			if err := page.Fill(ctx, params.Selector, "", fillOpts); err != nil {
				return err
			}
		}
		if err := page.Fill(ctx, params.Selector, params.Value, fillOpts); err != nil {
			return err
		}
		if params.PressEnter {
			return page.Press(ctx, params.Selector, "Enter")
		}
		return nil
	})
}

// Navigate loads params.URL in the session's page.
func (m *Middleware) Navigate(ctx context.Context, params NavigateParams) ActionResult {
	target := normalizeURL(params.URL)
	details := map[string]any{DetailURL: target}
	if err := params.validate(); err != nil {
		return failed(ActionNavigate, details, err)
	}

	gotoOpts := driver.GotoOptions{
		WaitUntil: driver.LoadStateLoad,
		Referer:   params.Referer,
		Headers:   params.Headers,
	}
	if params.Wait.kind() == WaitNavigation && params.Wait.Until != "" {
		gotoOpts.WaitUntil = params.Wait.Until
	}

	return m.run(ctx, ActionNavigate, params.SessionID, params.Wait, details, func(ctx context.Context, page driver.Page) error {
		return page.Goto(ctx, target, gotoOpts)
	})
}

// run is the shared action pipeline: resolve the page, capture the before
// state, act, wait, recover if the page may have navigated, and report.
func (m *Middleware) run(
	ctx context.Context,
	action, sessionID string,
	wait WaitPolicy,
	details map[string]any,
	act func(context.Context, driver.Page) error,
) ActionResult {
	start := m.now()
	details[DetailSessionID] = sessionID
	details[DetailWait] = string(wait.kind())
	defer func() {
		details[DetailDurationMs] = m.now().Sub(start).Milliseconds()
	}()

	page, conn, err := m.resolve(ctx, sessionID)
	if err != nil {
		return failed(action, details, err)
	}

	beforeURL, beforeTitle := m.readState(ctx, page)
	details[DetailBeforeURL] = beforeURL
	details[DetailBeforeTitle] = beforeTitle

	contextDestroyed := false
	if err := act(ctx, page); err != nil {
		if driver.KindOfWith(err, m.classifier) != driver.KindContextDestroyed {
			m.logger.Warnf("%s on session %s failed: %v", action, sessionID, err)
			return failed(action, details, fmt.Errorf("%w: %w", ErrActionFailed, err))
		}
		// The action replaced its own document, which is what a
		// navigating click or submit is expected to do.
		m.logger.Infof("%s on session %s destroyed the page context, treating as navigation", action, sessionID)
		contextDestroyed = true
	}

	if !contextDestroyed {
		if err := m.wait(ctx, page, wait, beforeURL); err != nil {
			switch {
			case driver.KindOfWith(err, m.classifier) == driver.KindContextDestroyed:
				contextDestroyed = true
			case wait.ImpliesNavigation():
				details[DetailWaitError] = err.Error()
			default:
				m.logger.Warnf("%s on session %s: wait %s failed: %v", action, sessionID, wait.kind(), err)
				return failed(action, details, fmt.Errorf("%w: wait %s: %w", ErrActionFailed, wait.kind(), err))
			}
		}
	}

	result := ActionResult{Action: action, Success: true, Details: details}

	if !contextDestroyed && !wait.ImpliesNavigation() {
		afterURL, afterTitle := m.readState(ctx, page)
		details[DetailAfterURL] = afterURL
		details[DetailAfterTitle] = afterTitle
		result.URLChanged = afterURL != "" && m.compare(details, beforeURL, afterURL)
		result.NavigationSuccessful = result.URLChanged
		m.logger.Debugf("%s on session %s succeeded (url changed: %t)", action, sessionID, result.URLChanged)
		return result
	}

	outcome := m.engine.Reconnect(ctx, conn, page, beforeURL, navigation.ReconnectOptions{SessionID: sessionID})
	details[DetailNavigation] = outcome.Details
	if outcome.Details[navigation.DetailRequiresSessionReconnect] == true {
		details[DetailReconnectReq] = true
	}

	result.ContextDestroyed = contextDestroyed || outcome.ContextDestroyed
	result.NavigationSuccessful = outcome.Success

	active := page
	if outcome.PageReconnected && outcome.ActivePage != nil {
		active = outcome.ActivePage
		if err := m.registry.StorePage(sessionID, m.registry.NewPageID(), active); err != nil {
			details[DetailStoreError] = err.Error()
			m.logger.Warnf("could not store reconnected page for session %s: %v", sessionID, err)
		} else {
			result.PageReconnected = true
		}
	}

	switch {
	case outcome.URLKnown:
		afterURL, _ := outcome.Details[navigation.DetailNewURL].(string)
		details[DetailAfterURL] = afterURL
		if title, ok := outcome.Details[navigation.DetailNewTitle].(string); ok {
			details[DetailAfterTitle] = title
		}
		result.URLChanged = outcome.URLChanged
		m.compare(details, beforeURL, afterURL)
	case outcome.Success:
		afterURL, afterTitle := m.readState(ctx, active)
		details[DetailAfterURL] = afterURL
		details[DetailAfterTitle] = afterTitle
		result.URLChanged = afterURL != "" && m.compare(details, beforeURL, afterURL)
	}

	m.logger.Infof("%s on session %s: context destroyed=%t, url changed=%t, page reconnected=%t",
		action, sessionID, result.ContextDestroyed, result.URLChanged, result.PageReconnected)
	return result
}

// resolve returns the session's page and connection. A closed stored page is
// replaced with the connection's active page.
func (m *Middleware) resolve(ctx context.Context, sessionID string) (driver.Page, driver.Connection, error) {
	s, ok := m.registry.GetSession(sessionID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionUnavailable, sessionID)
	}
	if s.HasPage() && !s.Page.IsClosed() {
		return s.Page, s.Connection, nil
	}

	page, ok := m.locator.Locate(ctx, s.Connection)
	if !ok {
		return nil, nil, fmt.Errorf("%w: session %s has no usable page", ErrSessionUnavailable, sessionID)
	}
	if err := m.registry.StorePage(sessionID, m.registry.NewPageID(), page); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	m.logger.Debugf("session %s had no open page, located active page", sessionID)
	return page, s.Connection, nil
}

// readState reads URL and title best-effort; failures yield empty strings.
func (m *Middleware) readState(ctx context.Context, page driver.Page) (string, string) {
	ctx, cancel := context.WithTimeout(ctx, m.readTimeout)
	defer cancel()

	url, err := page.URL(ctx)
	if err != nil {
		return "", ""
	}
	title, _ := page.Title(ctx)
	return url, title
}

// compare runs the URL detector and records component deltas in details.
func (m *Middleware) compare(details map[string]any, before, after string) bool {
	res := urlchange.Detect(before, after, m.detect)
	if res.Components != nil {
		details[DetailURLDelta] = *res.Components
	}
	return res.Changed
}
