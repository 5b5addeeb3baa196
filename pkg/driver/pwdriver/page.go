package pwdriver

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagekeeper/pkg/driver"
)

// locationScript reads the URL from inside the document so a destroyed
// context surfaces as an error instead of a stale cached value.
const locationScript = "() => window.location.href"

// page adapts playwright.Page to driver.Page.
type page struct {
	page playwright.Page
	drv  *Driver
}

func (p *page) URL(ctx context.Context) (string, error) {
	v, err := p.Evaluate(ctx, locationScript)
	if err != nil {
		return "", err
	}
	href, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected location value %T", v)
	}
	return href, nil
}

func (p *page) Title(ctx context.Context) (string, error) {
	title, err := call(ctx, p.page.Title)
	return title, p.err("title", err)
}

func (p *page) Evaluate(ctx context.Context, expression string) (any, error) {
	v, err := call(ctx, func() (any, error) {
		return p.page.Evaluate(expression)
	})
	return v, p.err("evaluate", err)
}

func (p *page) Click(ctx context.Context, selector string, opts driver.ClickOptions) error {
	playwrightOpts := playwright.PageClickOptions{
		Timeout: timeoutMs(ctx, p.drv.actionTimeout),
	}
	if opts.Button != "" {
		button := playwright.MouseButton(opts.Button)
		playwrightOpts.Button = &button
	}
	if opts.ClickCount > 0 {
		playwrightOpts.ClickCount = &opts.ClickCount
	}

	return p.err("click", do(ctx, func() error {
		return p.page.Click(selector, playwrightOpts)
	}))
}

func (p *page) Fill(ctx context.Context, selector, value string, opts driver.FillOptions) error {
	playwrightOpts := playwright.PageFillOptions{
		Timeout: timeoutMs(ctx, p.drv.actionTimeout),
	}
	if opts.Force {
		playwrightOpts.Force = playwright.Bool(true)
	}

	return p.err("fill", do(ctx, func() error {
		return p.page.Fill(selector, value, playwrightOpts)
	}))
}

func (p *page) SetChecked(ctx context.Context, selector string, checked bool) error {
	timeout := timeoutMs(ctx, p.drv.actionTimeout)
	return p.err("set checked", do(ctx, func() error {
		if checked {
			return p.page.Check(selector, playwright.PageCheckOptions{Timeout: timeout})
		}
		return p.page.Uncheck(selector, playwright.PageUncheckOptions{Timeout: timeout})
	}))
}

func (p *page) SetInputFiles(ctx context.Context, selector string, paths []string) error {
	playwrightOpts := playwright.PageSetInputFilesOptions{
		Timeout: timeoutMs(ctx, p.drv.actionTimeout),
	}
	return p.err("set input files", do(ctx, func() error {
		return p.page.SetInputFiles(selector, paths, playwrightOpts)
	}))
}

func (p *page) Press(ctx context.Context, selector, key string) error {
	playwrightOpts := playwright.PagePressOptions{
		Timeout: timeoutMs(ctx, p.drv.actionTimeout),
	}
	return p.err("press", do(ctx, func() error {
		return p.page.Press(selector, key, playwrightOpts)
	}))
}

func (p *page) Goto(ctx context.Context, url string, opts driver.GotoOptions) error {
	if len(opts.Headers) > 0 {
		if err := p.page.SetExtraHTTPHeaders(opts.Headers); err != nil {
			return p.err("set headers", err)
		}
	}

	playwrightOpts := playwright.PageGotoOptions{
		Timeout: timeoutMs(ctx, p.drv.actionTimeout),
	}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		playwrightOpts.WaitUntil = &waitUntil
	}
	if opts.Referer != "" {
		playwrightOpts.Referer = playwright.String(opts.Referer)
	}

	return p.err("goto", do(ctx, func() error {
		_, err := p.page.Goto(url, playwrightOpts)
		return err
	}))
}

func (p *page) WaitForSelector(ctx context.Context, selector string, opts driver.WaitForSelectorOptions) error {
	playwrightOpts := playwright.PageWaitForSelectorOptions{
		Timeout: timeoutMs(ctx, p.drv.actionTimeout),
	}
	if opts.State != "" {
		state := playwright.WaitForSelectorState(opts.State)
		playwrightOpts.State = &state
	}

	return p.err("wait for selector", do(ctx, func() error {
		_, err := p.page.WaitForSelector(selector, playwrightOpts)
		return err
	}))
}

func (p *page) WaitForLoadState(ctx context.Context, state driver.LoadState) error {
	playwrightOpts := playwright.PageWaitForLoadStateOptions{
		Timeout: timeoutMs(ctx, p.drv.actionTimeout),
	}
	if state != "" {
		s := playwright.LoadState(state)
		playwrightOpts.State = &s
	}

	return p.err("wait for load state", do(ctx, func() error {
		return p.page.WaitForLoadState(playwrightOpts)
	}))
}

func (p *page) IsClosed() bool {
	return p.page.IsClosed()
}

func (p *page) Close() error {
	return p.err("close page", p.page.Close())
}

func (p *page) err(op string, err error) error {
	return p.drv.mapErr(op, err, driver.KindContextDestroyed)
}
