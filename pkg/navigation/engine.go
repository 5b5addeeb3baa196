package navigation

import (
	"context"
	"errors"
	"time"

	"github.com/entrhq/pagekeeper/pkg/driver"
	"github.com/entrhq/pagekeeper/pkg/logging"
	"github.com/entrhq/pagekeeper/pkg/urlchange"
)

// Default values for engine reads
const (
	DefaultProbeTimeout = 5 * time.Second
	DefaultReadTimeout  = 5 * time.Second
)

// Reconnect phases recorded under the "phase" detail key.
const (
	PhaseRecoveryWait      = "recovery_wait"
	PhaseConnectionCheck   = "connection_check"
	PhaseContextCheck      = "context_check"
	PhaseReconnect         = "reconnect"
	PhaseValidateReconnect = "validate_reconnect"
)

// Detail keys set on Outcome.Details.
const (
	DetailPhase                    = "phase"
	DetailRequiresSessionReconnect = "requiresSessionManagerReconnect"
	DetailError                    = "error"
	DetailErrorKind                = "errorKind"
	DetailUnexpectedError          = "unexpectedError"
	DetailPageCount                = "pageCount"
	DetailNewURL                   = "newUrl"
	DetailNewTitle                 = "newTitle"
	DetailURLUnknown               = "urlUnknown"
	DetailOriginalURL              = "originalUrl"
)

var errNoConnection = errors.New("no connection")

// Outcome reports what Reconnect found. It is built per call and never stored.
type Outcome struct {
	Success          bool
	Reconnected      bool
	PageReconnected  bool
	ContextDestroyed bool

	// ActivePage is the page to keep using, the original or a replacement
	ActivePage driver.Page

	// URLChanged compares the active page's URL with the URL before the
	// action. It is meaningful only when URLKnown is true.
	URLChanged bool
	URLKnown   bool

	Details map[string]any
}

// ReconnectOptions configures a single Reconnect call.
type ReconnectOptions struct {
	// SessionID marks the connection as registry-owned. A dead connection
	// then yields an outcome asking the caller to reconnect the session.
	SessionID string

	// Recovery overrides the engine's recovery policy for this call
	Recovery RecoveryPolicy
}

// Engine recovers a usable page after an action that may have navigated.
type Engine struct {
	selector     PageSelector
	recovery     RecoveryPolicy
	classifier   *driver.Classifier
	probeTimeout time.Duration
	readTimeout  time.Duration
	logger       *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecovery sets the default recovery policy.
func WithRecovery(p RecoveryPolicy) Option {
	return func(e *Engine) { e.recovery = p }
}

// WithPageSelector replaces the LastPage heuristic.
func WithPageSelector(s PageSelector) Option {
	return func(e *Engine) { e.selector = s }
}

// WithClassifier sets the table used for errors that carry no driver kind.
func WithClassifier(c *driver.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithProbeTimeout bounds the connection probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(e *Engine) { e.probeTimeout = d }
}

// WithReadTimeout bounds URL and title reads.
func WithReadTimeout(d time.Duration) Option {
	return func(e *Engine) { e.readTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine with a FixedDelay of DefaultRecoveryDelay.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		selector:     LastPage,
		recovery:     FixedDelay{Delay: DefaultRecoveryDelay},
		classifier:   driver.DefaultClassifier(),
		probeTimeout: DefaultProbeTimeout,
		readTimeout:  DefaultReadTimeout,
		logger:       logging.Discard("navigation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconnect waits out the recovery window, then returns original if its
// context survived, or the connection's active page if it did not.
// Failures are reported in the Outcome, never as errors.
func (e *Engine) Reconnect(ctx context.Context, conn driver.Connection, original driver.Page, beforeURL string, opts ReconnectOptions) Outcome {
	out := Outcome{Details: map[string]any{DetailOriginalURL: beforeURL}}

	// RECOVERY_WAIT
	out.Details[DetailPhase] = PhaseRecoveryWait
	recovery := opts.Recovery
	if recovery == nil {
		recovery = e.recovery
	}
	recovery.Wait()

	// CONNECTION_CHECK
	out.Details[DetailPhase] = PhaseConnectionCheck
	if err := e.probe(ctx, conn); err != nil {
		out.ContextDestroyed = true
		out.Details[DetailError] = err.Error()
		out.Details[DetailErrorKind] = driver.KindOfWith(err, e.classifier).String()
		if opts.SessionID != "" {
			out.Details[DetailRequiresSessionReconnect] = true
			e.logger.Warnf("connection for session %s lost, session reconnect required: %v", opts.SessionID, err)
		} else {
			e.logger.Warnf("connection lost with no session to recover: %v", err)
		}
		return out
	}

	// CONTEXT_CHECK
	out.Details[DetailPhase] = PhaseContextCheck
	if original != nil {
		url, err := e.readURL(ctx, original)
		if err == nil {
			out.Success = true
			out.Reconnected = true
			out.ActivePage = original
			out.URLChanged = urlchange.Changed(beforeURL, url)
			out.URLKnown = true
			out.Details[DetailNewURL] = url
			e.logger.Debugf("original page still valid at %s", url)
			return out
		}

		kind := driver.KindOfWith(err, e.classifier)
		out.ContextDestroyed = kind == driver.KindContextDestroyed
		out.Details[DetailError] = err.Error()
		out.Details[DetailErrorKind] = kind.String()
		if !out.ContextDestroyed {
			out.Details[DetailUnexpectedError] = true
			e.logger.Warnf("unexpected error reading original page, reconnecting anyway: %v", err)
		} else {
			e.logger.Infof("execution context destroyed, reconnecting")
		}
	}

	// RECONNECT
	out.Details[DetailPhase] = PhaseReconnect
	pages, err := conn.Pages(ctx)
	if err != nil {
		out.Details[DetailError] = err.Error()
		e.logger.Warnf("listing pages failed: %v", err)
		return out
	}
	out.Details[DetailPageCount] = len(pages)
	candidate := e.selector.Pick(pages)
	if candidate == nil {
		e.logger.Warnf("no open pages to reconnect to")
		return out
	}

	// VALIDATE_RECONNECT
	out.Details[DetailPhase] = PhaseValidateReconnect
	out.Success = true
	out.Reconnected = true
	out.PageReconnected = true
	out.ActivePage = candidate

	url, urlErr := e.readURL(ctx, candidate)
	title, titleErr := e.readTitle(ctx, candidate)
	if urlErr != nil || titleErr != nil {
		out.Details[DetailURLUnknown] = true
		e.logger.Warnf("reconnected to page with unknown url/title: %v", errors.Join(urlErr, titleErr))
		return out
	}

	out.Details[DetailNewURL] = url
	out.Details[DetailNewTitle] = title
	out.URLChanged = urlchange.Changed(beforeURL, url)
	out.URLKnown = true
	e.logger.Infof("reconnected to page %s (url changed: %t)", url, out.URLChanged)
	return out
}

func (e *Engine) probe(ctx context.Context, conn driver.Connection) error {
	if conn == nil {
		return driver.WrapKind("probe", driver.KindConnectionLost, errNoConnection)
	}
	probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()
	return conn.Probe(probeCtx)
}

func (e *Engine) readURL(ctx context.Context, p driver.Page) (string, error) {
	readCtx, cancel := context.WithTimeout(ctx, e.readTimeout)
	defer cancel()
	return p.URL(readCtx)
}

func (e *Engine) readTitle(ctx context.Context, p driver.Page) (string, error) {
	readCtx, cancel := context.WithTimeout(ctx, e.readTimeout)
	defer cancel()
	return p.Title(readCtx)
}
