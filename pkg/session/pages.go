package session

import (
	"context"
	"fmt"

	"github.com/entrhq/pagekeeper/pkg/driver"
)

// GetOrCreatePageSession finds a usable page, trying in order: the named
// session (locally, then by remote attach), any session with a stored page,
// a new page on any session's connection, and finally a brand-new session
// on req.Endpoint. Every page it creates is stored before returning.
func (r *Registry) GetOrCreatePageSession(ctx context.Context, req PageRequest) (PageSession, error) {
	if req.SessionID != "" {
		if ps, ok := r.fromNamedSession(ctx, req); ok {
			return ps, nil
		}
	}

	if ps, ok := r.fromStoredPage(); ok {
		return ps, nil
	}

	if ps, ok := r.fromAnyConnection(ctx); ok {
		return ps, nil
	}

	if req.Endpoint == "" {
		return PageSession{}, ErrNoUsableSession
	}
	return r.fromNewSession(ctx, req)
}

func (r *Registry) fromNamedSession(ctx context.Context, req PageRequest) (PageSession, bool) {
	if s, ok := r.GetSession(req.SessionID); ok {
		if s.HasPage() {
			return PageSession{Page: s.Page, PageID: s.PageID, SessionID: s.ID}, true
		}
		return r.openPage(ctx, s.ID, s.Connection)
	}

	if req.Endpoint == "" {
		return PageSession{}, false
	}

	conn, page, err := r.ConnectToSession(ctx, req.SessionID, req.Endpoint, ConnectOptions{
		Token:          req.Token,
		CredentialKind: req.CredentialKind,
	})
	if err != nil {
		r.logger.Warnf("could not attach to session %s: %v", req.SessionID, err)
		return PageSession{}, false
	}
	if page != nil {
		s, _ := r.GetSession(req.SessionID)
		return PageSession{Page: page, PageID: s.PageID, SessionID: req.SessionID}, true
	}
	return r.openPage(ctx, req.SessionID, conn)
}

func (r *Registry) fromStoredPage() (PageSession, bool) {
	for _, info := range r.GetAllSessions() {
		if info.PageCount == 0 {
			continue
		}
		if s, ok := r.GetSession(info.ID); ok && s.HasPage() {
			r.logger.Debugf("reusing stored page of session %s", s.ID)
			return PageSession{Page: s.Page, PageID: s.PageID, SessionID: s.ID}, true
		}
	}
	return PageSession{}, false
}

func (r *Registry) fromAnyConnection(ctx context.Context) (PageSession, bool) {
	for _, info := range r.GetAllSessions() {
		conn, ok := r.connection(info.ID)
		if !ok {
			continue
		}
		if ps, ok := r.openPage(ctx, info.ID, conn); ok {
			return ps, true
		}
	}
	return PageSession{}, false
}

func (r *Registry) fromNewSession(ctx context.Context, req PageRequest) (PageSession, error) {
	id, conn, err := r.CreateSession(ctx, req.Endpoint, CreateOptions{
		Token:          req.Token,
		WorkflowID:     req.WorkflowID,
		CredentialKind: req.CredentialKind,
	})
	if err != nil {
		return PageSession{}, err
	}

	page, err := conn.NewPage(ctx)
	if err != nil {
		r.CloseSessions(CloseFilter{SessionID: id})
		return PageSession{}, fmt.Errorf("failed to open page on new session %s: %w", id, err)
	}

	if err := page.Goto(ctx, blankURL, driver.GotoOptions{WaitUntil: driver.LoadStateLoad}); err != nil {
		r.logger.Warnf("initial navigation of session %s failed: %v", id, err)
	}

	pageID := r.NewPageID()
	if err := r.StorePage(id, pageID, page); err != nil {
		return PageSession{}, err
	}
	return PageSession{Page: page, PageID: pageID, SessionID: id, IsNewSession: true}, nil
}

// openPage creates and stores a page on conn for session id.
func (r *Registry) openPage(ctx context.Context, id string, conn driver.Connection) (PageSession, bool) {
	page, err := conn.NewPage(ctx)
	if err != nil {
		r.logger.Warnf("could not open page on session %s: %v", id, err)
		return PageSession{}, false
	}

	pageID := r.NewPageID()
	if err := r.StorePage(id, pageID, page); err != nil {
		// Session closed concurrently
		r.logger.Warnf("could not store page for session %s: %v", id, err)
		_ = page.Close()
		return PageSession{}, false
	}
	return PageSession{Page: page, PageID: pageID, SessionID: id}, true
}
