package session

import (
	"errors"
	"time"

	"github.com/entrhq/pagekeeper/pkg/driver"
)

var (
	// ErrConnectionFailed is returned when the driver rejects a connect call.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrUnknownSession is returned when an operation names a session the
	// registry does not hold.
	ErrUnknownSession = errors.New("unknown session")

	// ErrNoUsableSession is returned when no page can be found or created and
	// no endpoint was supplied to create a session with.
	ErrNoUsableSession = errors.New("no usable session")

	// ErrSessionLimit is returned when creating a session would exceed the
	// configured maximum.
	ErrSessionLimit = errors.New("session limit reached")
)

// Session is a snapshot of a registry entry. The connection and page handles
// are shared with the registry; the other fields are copies.
type Session struct {
	// ID is the registry key for this session
	ID string

	// Connection is the live browser connection owned by this session
	Connection driver.Connection

	// PageID identifies the stored page, empty when there is none
	PageID string

	// Page is the single stored page, nil when there is none
	Page driver.Page

	// WorkflowID groups sessions opened by the same workflow
	WorkflowID string

	// CredentialKind records which credential type opened the connection
	CredentialKind string

	// CreatedAt is the timestamp when the session was created
	CreatedAt time.Time

	// LastUsedAt is the timestamp of the last lookup or page change
	LastUsedAt time.Time
}

// HasPage reports whether the session holds a page.
func (s Session) HasPage() bool {
	return s.Page != nil
}

// SessionInfo contains metadata about a session.
type SessionInfo struct {
	ID         string
	PageCount  int
	WorkflowID string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// CreateOptions configures CreateSession.
type CreateOptions struct {
	// Token authenticates against the remote browser provider
	Token string

	WorkflowID     string
	CredentialKind string
}

// ConnectOptions configures ConnectToSession.
type ConnectOptions struct {
	Token          string
	CredentialKind string
}

// CloseFilter selects sessions to close. Exactly one criterion is applied,
// in field order: SessionID, WorkflowID, OlderThan, All.
type CloseFilter struct {
	SessionID  string
	WorkflowID string

	// OlderThan selects sessions whose last use is at least this long ago
	OlderThan *time.Duration

	All bool
}

// CloseResult reports how many sessions were selected and how many closed
// cleanly. Every selected session is removed either way.
type CloseResult struct {
	Total  int
	Closed int
}

// PageRequest configures GetOrCreatePageSession.
type PageRequest struct {
	// SessionID is tried first, locally and then remotely
	SessionID string

	// Endpoint enables remote attach and new session creation
	Endpoint string

	Token          string
	WorkflowID     string
	CredentialKind string
}

// PageSession is the page chosen by GetOrCreatePageSession.
type PageSession struct {
	Page      driver.Page
	PageID    string
	SessionID string

	// IsNewSession is true only when a brand-new session was created
	IsNewSession bool
}

// entry is the mutable registry record behind a Session.
type entry struct {
	id             string
	conn           driver.Connection
	pageID         string
	page           driver.Page
	workflowID     string
	credentialKind string
	createdAt      time.Time
	lastUsedAt     time.Time
}

func (e *entry) snapshot() Session {
	return Session{
		ID:             e.id,
		Connection:     e.conn,
		PageID:         e.pageID,
		Page:           e.page,
		WorkflowID:     e.workflowID,
		CredentialKind: e.credentialKind,
		CreatedAt:      e.createdAt,
		LastUsedAt:     e.lastUsedAt,
	}
}

func (e *entry) pageCount() int {
	if e.page == nil {
		return 0
	}
	return 1
}
