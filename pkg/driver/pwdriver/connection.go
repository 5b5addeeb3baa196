package pwdriver

import (
	"context"
	"errors"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagekeeper/pkg/driver"
)

var errNotConnected = errors.New("browser is not connected")

// connection wraps a Playwright browser attached over CDP.
type connection struct {
	browser playwright.Browser
	drv     *Driver
}

func (c *connection) IsConnected() bool {
	return c.browser.IsConnected()
}

// Probe asks the browser for its version over a throwaway CDP session.
func (c *connection) Probe(ctx context.Context) error {
	if !c.browser.IsConnected() {
		return driver.WrapKind("probe", driver.KindConnectionLost, errNotConnected)
	}
	err := do(ctx, func() error {
		session, err := c.browser.NewBrowserCDPSession()
		if err != nil {
			return err
		}
		defer func() { _ = session.Detach() }()
		_, err = session.Send("Browser.getVersion", nil)
		return err
	})
	return c.drv.mapErr("probe", err, driver.KindConnectionLost)
}

// Pages lists pages across all browser contexts in creation order.
func (c *connection) Pages(ctx context.Context) ([]driver.Page, error) {
	if !c.browser.IsConnected() {
		return nil, driver.WrapKind("pages", driver.KindConnectionLost, errNotConnected)
	}
	var pages []driver.Page
	for _, bc := range c.browser.Contexts() {
		for _, p := range bc.Pages() {
			pages = append(pages, c.wrap(p))
		}
	}
	return pages, nil
}

// NewPage opens a page in the default context, which is the one a remote
// browser's existing tabs live in.
func (c *connection) NewPage(ctx context.Context) (driver.Page, error) {
	p, err := call(ctx, func() (playwright.Page, error) {
		if contexts := c.browser.Contexts(); len(contexts) > 0 {
			return contexts[0].NewPage()
		}
		return c.browser.NewPage()
	})
	if err != nil {
		return nil, c.drv.mapErr("new page", err, driver.KindConnectionLost)
	}
	p.SetDefaultTimeout(float64(c.drv.actionTimeout.Milliseconds()))
	return c.wrap(p), nil
}

func (c *connection) Close() error {
	return c.drv.mapErr("close", c.browser.Close(), driver.KindConnectionLost)
}

func (c *connection) wrap(p playwright.Page) *page {
	return &page{page: p, drv: c.drv}
}
