package navigation

import (
	"context"
	"time"

	"github.com/entrhq/pagekeeper/pkg/driver"
)

// DefaultResponsiveTimeout bounds the responsiveness check on a located page.
const DefaultResponsiveTimeout = 2 * time.Second

// responsiveScript is a trivial evaluation that only succeeds on a live context.
const responsiveScript = "() => true"

// PageSelector picks the page assumed to be active from a connection's page
// list, oldest first.
type PageSelector interface {
	Pick(pages []driver.Page) driver.Page
}

// PageSelectorFunc adapts a function to PageSelector.
type PageSelectorFunc func(pages []driver.Page) driver.Page

func (f PageSelectorFunc) Pick(pages []driver.Page) driver.Page {
	return f(pages)
}

// LastPage assumes the newest page is the active one. With several tabs open
// at once this can pick the wrong tab.
var LastPage PageSelector = PageSelectorFunc(func(pages []driver.Page) driver.Page {
	if len(pages) == 0 {
		return nil
	}
	return pages[len(pages)-1]
})

// Locator finds the active page on a connection and checks it responds.
type Locator struct {
	Selector          PageSelector
	ResponsiveTimeout time.Duration
}

// NewLocator returns a Locator using LastPage.
func NewLocator() *Locator {
	return &Locator{Selector: LastPage, ResponsiveTimeout: DefaultResponsiveTimeout}
}

// Locate returns the active page, or false when the connection is down, has
// no pages, or the candidate does not answer a trivial evaluation in time.
func (l *Locator) Locate(ctx context.Context, conn driver.Connection) (driver.Page, bool) {
	if conn == nil || !conn.IsConnected() {
		return nil, false
	}

	pages, err := conn.Pages(ctx)
	if err != nil || len(pages) == 0 {
		return nil, false
	}

	candidate := l.selector().Pick(pages)
	if candidate == nil {
		return nil, false
	}

	timeout := l.ResponsiveTimeout
	if timeout <= 0 {
		timeout = DefaultResponsiveTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := candidate.Evaluate(checkCtx, responsiveScript); err != nil {
		return nil, false
	}
	return candidate, true
}

func (l *Locator) selector() PageSelector {
	if l.Selector == nil {
		return LastPage
	}
	return l.Selector
}
