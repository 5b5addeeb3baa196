package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/pagekeeper/pkg/driver"
	"github.com/entrhq/pagekeeper/pkg/endpoint"
	"github.com/entrhq/pagekeeper/pkg/logging"
)

// Default values for registry operations
const (
	DefaultProbeTimeout     = 5 * time.Second
	DefaultCloseConcurrency = 4
)

var errDisconnected = errors.New("connection reports disconnected")

// blankURL is loaded into freshly created sessions to force page initialization.
const blankURL = "about:blank"

// Registry maps session ids to live browser connections and their single
// stored page. Each method is atomic with respect to itself only; callers
// that read a page, act on it and store a replacement race with each other
// and the last StorePage wins.
type Registry struct {
	mu               sync.RWMutex
	sessions         map[string]*entry
	driver           driver.Driver
	logger           *logging.Logger
	now              func() time.Time
	maxSessions      int
	probeTimeout     time.Duration
	closeConcurrency int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithMaxSessions limits the number of concurrent sessions. Zero means unlimited.
func WithMaxSessions(n int) Option {
	return func(r *Registry) { r.maxSessions = n }
}

// WithProbeTimeout bounds liveness probes.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Registry) { r.probeTimeout = d }
}

// WithCloseConcurrency bounds how many connections CloseSessions closes at once.
func WithCloseConcurrency(n int) Option {
	return func(r *Registry) { r.closeConcurrency = n }
}

// NewRegistry creates an empty registry connecting through d.
func NewRegistry(d driver.Driver, opts ...Option) *Registry {
	r := &Registry{
		sessions:         make(map[string]*entry),
		driver:           d,
		logger:           logging.Discard("session"),
		now:              time.Now,
		probeTimeout:     DefaultProbeTimeout,
		closeConcurrency: DefaultCloseConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewPageID returns a fresh page identifier.
func (r *Registry) NewPageID() string {
	return "page-" + uuid.NewString()
}

func newSessionID() string {
	return "session-" + uuid.NewString()
}

// CreateSession connects to rawEndpoint and stores the connection under a
// new session id.
func (r *Registry) CreateSession(ctx context.Context, rawEndpoint string, opts CreateOptions) (string, driver.Connection, error) {
	desc, err := endpoint.Build(rawEndpoint, endpoint.Options{Token: opts.Token})
	if err != nil {
		return "", nil, err
	}

	if err := r.checkLimit(""); err != nil {
		return "", nil, err
	}

	conn, err := r.driver.Connect(ctx, desc)
	if err != nil {
		r.logger.Errorf("connect to %s failed: %v", desc.Redacted(), err)
		return "", nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	id := newSessionID()
	now := r.now()

	r.mu.Lock()
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		_ = conn.Close() // Ignore errors, the connection was never registered
		return "", nil, fmt.Errorf("%w: maximum number of sessions (%d) reached", ErrSessionLimit, r.maxSessions)
	}
	r.sessions[id] = &entry{
		id:             id,
		conn:           conn,
		workflowID:     opts.WorkflowID,
		credentialKind: opts.CredentialKind,
		createdAt:      now,
		lastUsedAt:     now,
	}
	r.mu.Unlock()

	r.logger.Infof("created session %s (workflow=%q)", id, opts.WorkflowID)
	return id, conn, nil
}

// GetSession returns the session and touches its last-used time.
func (r *Registry) GetSession(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	e.lastUsedAt = r.now()
	return e.snapshot(), true
}

// GetPage returns the page stored under pageID, or the session's single
// stored page when pageID is empty or does not match.
func (r *Registry) GetPage(id, pageID string) (driver.Page, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[id]
	if !ok || e.page == nil {
		return nil, false
	}
	return e.page, true
}

// StorePage replaces whatever page the session holds with page.
func (r *Registry) StorePage(id, pageID string, page driver.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	e.pageID = pageID
	e.page = page
	e.lastUsedAt = r.now()

	r.logger.Debugf("stored page %s for session %s", pageID, id)
	return nil
}

// ConnectToSession reuses the local connection for id when it still answers
// a probe. Otherwise it attaches to the remote session id at rawEndpoint and
// overwrites the local entry. Old page references are dropped; the remote
// session's newest tab, if any, becomes the stored page.
func (r *Registry) ConnectToSession(ctx context.Context, id, rawEndpoint string, opts ConnectOptions) (driver.Connection, driver.Page, error) {
	r.mu.RLock()
	existing, ok := r.sessions[id]
	var stale driver.Connection
	var page driver.Page
	if ok {
		stale = existing.conn
		page = existing.page
	}
	r.mu.RUnlock()

	if ok {
		err := r.probe(ctx, stale)
		if err == nil {
			r.touch(id)
			r.logger.Debugf("session %s is alive, reusing connection", id)
			return stale, page, nil
		}
		r.logger.Warnf("session %s failed probe, reconnecting: %v", id, err)
	}

	desc, err := endpoint.Build(rawEndpoint, endpoint.Options{Token: opts.Token, SessionID: id})
	if err != nil {
		return nil, nil, err
	}

	if !ok {
		if err := r.checkLimit(id); err != nil {
			return nil, nil, err
		}
	}

	conn, err := r.driver.Connect(ctx, desc)
	if err != nil {
		r.logger.Errorf("attach to session %s failed: %v", id, err)
		return nil, nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// Adopt the remote session's newest tab, if it has one
	var pageID string
	page = nil
	if pages, err := conn.Pages(ctx); err == nil && len(pages) > 0 {
		page = pages[len(pages)-1]
		pageID = r.NewPageID()
	}

	now := r.now()
	r.mu.Lock()
	r.sessions[id] = &entry{
		id:             id,
		conn:           conn,
		pageID:         pageID,
		page:           page,
		credentialKind: opts.CredentialKind,
		createdAt:      now,
		lastUsedAt:     now,
	}
	r.mu.Unlock()

	if stale != nil && stale != conn {
		_ = stale.Close() // Ignore errors, the connection already failed its probe
	}

	r.logger.Infof("attached to remote session %s", id)
	return conn, page, nil
}

// CloseSessions closes every session selected by filter. Entries are removed
// whether or not their connection closes cleanly.
func (r *Registry) CloseSessions(filter CloseFilter) CloseResult {
	r.mu.Lock()
	selected := r.selectLocked(filter)
	for _, e := range selected {
		delete(r.sessions, e.id)
	}
	r.mu.Unlock()

	var closed atomic.Int64
	var g errgroup.Group
	if r.closeConcurrency > 0 {
		g.SetLimit(r.closeConcurrency)
	}
	for _, e := range selected {
		g.Go(func() error {
			if err := e.conn.Close(); err != nil {
				r.logger.Warnf("closing session %s: %v", e.id, err)
				return nil
			}
			closed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result := CloseResult{Total: len(selected), Closed: int(closed.Load())}
	if result.Total > 0 {
		r.logger.Infof("closed %d of %d sessions", result.Closed, result.Total)
	}
	return result
}

func (r *Registry) selectLocked(filter CloseFilter) []*entry {
	var selected []*entry
	switch {
	case filter.SessionID != "":
		if e, ok := r.sessions[filter.SessionID]; ok {
			selected = append(selected, e)
		}
	case filter.WorkflowID != "":
		for _, e := range r.sessions {
			if e.workflowID == filter.WorkflowID {
				selected = append(selected, e)
			}
		}
	case filter.OlderThan != nil:
		now := r.now()
		for _, e := range r.sessions {
			if now.Sub(e.lastUsedAt) >= *filter.OlderThan {
				selected = append(selected, e)
			}
		}
	case filter.All:
		for _, e := range r.sessions {
			selected = append(selected, e)
		}
	}
	return selected
}

// GetAllSessions returns a snapshot of every session, oldest first.
func (r *Registry) GetAllSessions() []SessionInfo {
	r.mu.RLock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, e := range r.sessions {
		infos = append(infos, SessionInfo{
			ID:         e.id,
			PageCount:  e.pageCount(),
			WorkflowID: e.workflowID,
			CreatedAt:  e.createdAt,
			LastUsedAt: e.lastUsedAt,
		})
	}
	r.mu.RUnlock()

	slices.SortFunc(infos, func(a, b SessionInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// IsSessionActive reports whether the session exists and its connection
// answers a probe.
func (r *Registry) IsSessionActive(ctx context.Context, id string) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	var conn driver.Connection
	if ok {
		conn = e.conn
	}
	r.mu.RUnlock()

	if !ok {
		return false
	}
	if err := r.probe(ctx, conn); err != nil {
		r.logger.Debugf("session %s inactive: %v", id, err)
		return false
	}
	return true
}

// HasSessions returns true if there are any sessions.
func (r *Registry) HasSessions() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions) > 0
}

// Shutdown closes all sessions and, when the driver supports it, stops the
// driver itself.
func (r *Registry) Shutdown() error {
	r.CloseSessions(CloseFilter{All: true})

	if s, ok := r.driver.(interface{ Shutdown() error }); ok {
		if err := s.Shutdown(); err != nil {
			return fmt.Errorf("failed to shut down driver: %w", err)
		}
	}
	return nil
}

func (r *Registry) probe(ctx context.Context, conn driver.Connection) error {
	if !conn.IsConnected() {
		return driver.WrapKind("probe", driver.KindConnectionLost, errDisconnected)
	}
	if r.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.probeTimeout)
		defer cancel()
	}
	return conn.Probe(ctx)
}

// connection returns the session's connection without marking it used.
func (r *Registry) connection(id string) (driver.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

func (r *Registry) touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.lastUsedAt = r.now()
	}
}

// checkLimit fails when adding a session other than replacing would exceed
// the maximum.
func (r *Registry) checkLimit(replacing string) error {
	if r.maxSessions <= 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.sessions[replacing]; ok {
		return nil
	}
	if len(r.sessions) >= r.maxSessions {
		return fmt.Errorf("%w: maximum number of sessions (%d) reached", ErrSessionLimit, r.maxSessions)
	}
	return nil
}
