// Package browsertest provides scripted in-memory implementations of the
// driver interfaces for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/pagekeeper/pkg/driver"
	"github.com/entrhq/pagekeeper/pkg/endpoint"
)

// ErrContextDestroyed mimics the message a browser returns when a navigation
// replaced the document under an in-flight call.
var ErrContextDestroyed = errors.New("Execution context was destroyed, most likely because of a navigation")

// Driver is a fake driver.Driver. Connections are served from Queue in order;
// once the queue is empty ConnectFunc is used, and without one a fresh
// Connection is returned.
type Driver struct {
	mu          sync.Mutex
	Queue       []*Connection
	ConnectFunc func(desc *endpoint.Descriptor) (driver.Connection, error)
	ConnectErr  error
	Descriptors []*endpoint.Descriptor
}

// NewDriver returns a driver that hands out conns in order.
func NewDriver(conns ...*Connection) *Driver {
	return &Driver{Queue: conns}
}

func (d *Driver) Connect(ctx context.Context, desc *endpoint.Descriptor) (driver.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Descriptors = append(d.Descriptors, desc)
	if d.ConnectErr != nil {
		return nil, d.ConnectErr
	}
	if len(d.Queue) > 0 {
		c := d.Queue[0]
		d.Queue = d.Queue[1:]
		return c, nil
	}
	if d.ConnectFunc != nil {
		return d.ConnectFunc(desc)
	}
	return NewConnection(), nil
}

// Calls returns the number of Connect calls made.
func (d *Driver) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Descriptors)
}

// LastDescriptor returns the descriptor of the most recent Connect call.
func (d *Driver) LastDescriptor() *endpoint.Descriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Descriptors) == 0 {
		return nil
	}
	return d.Descriptors[len(d.Descriptors)-1]
}

// Connection is a fake driver.Connection.
type Connection struct {
	mu          sync.Mutex
	pages       []*Page
	connected   bool
	probeErr    error
	pagesErr    error
	closeErr    error
	newPageErr  error
	closed      int
	pagesCalls  int
	probeCalls  int
	newPageURL  string
	NewPageFunc func() (*Page, error)
}

// NewConnection returns a live connection holding pages.
func NewConnection(pages ...*Page) *Connection {
	return &Connection{pages: pages, connected: true, newPageURL: "about:blank"}
}

// SetProbeErr makes Probe fail with err.
func (c *Connection) SetProbeErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probeErr = err
}

// SetConnected changes what IsConnected reports.
func (c *Connection) SetConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}

// SetCloseErr makes Close fail with err.
func (c *Connection) SetCloseErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
}

// SetPagesErr makes Pages fail with err.
func (c *Connection) SetPagesErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pagesErr = err
}

// SetNewPageErr makes NewPage fail with err.
func (c *Connection) SetNewPageErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newPageErr = err
}

// SetPages replaces the open page list.
func (c *Connection) SetPages(pages ...*Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = pages
}

func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Connection) Probe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probeCalls++
	if c.probeErr != nil {
		return c.probeErr
	}
	if !c.connected {
		return driver.WrapKind("probe", driver.KindConnectionLost, errors.New("browser is not connected"))
	}
	return nil
}

func (c *Connection) Pages(ctx context.Context) ([]driver.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pagesCalls++
	if c.pagesErr != nil {
		return nil, c.pagesErr
	}
	out := make([]driver.Page, 0, len(c.pages))
	for _, p := range c.pages {
		out = append(out, p)
	}
	return out, nil
}

func (c *Connection) NewPage(ctx context.Context) (driver.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.newPageErr != nil {
		return nil, c.newPageErr
	}
	var (
		p   *Page
		err error
	)
	if c.NewPageFunc != nil {
		p, err = c.NewPageFunc()
		if err != nil {
			return nil, err
		}
	} else {
		p = NewPage(c.newPageURL)
	}
	c.pages = append(c.pages, p)
	return p, nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	c.connected = false
	return c.closeErr
}

// Closed returns the number of Close calls made.
func (c *Connection) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// PagesCalls returns the number of Pages calls made.
func (c *Connection) PagesCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pagesCalls
}

// ProbeCalls returns the number of Probe calls made.
func (c *Connection) ProbeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probeCalls
}

// OpenPages returns the current page list.
func (c *Connection) OpenPages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

// Call records one page operation.
type Call struct {
	Op       string
	Selector string
	Value    string
	Values   []string

	// State is the load state a goto waited for
	State string
}

// Page is a fake driver.Page. Action funcs default to success; reads return
// the configured values unless an error is set.
type Page struct {
	mu       sync.Mutex
	url      string
	title    string
	urlErr   error
	titleErr error
	evalErr  error
	evalHang bool
	closed   bool
	calls    []Call

	// ActionErr, when set, is returned by Click/Fill/SetChecked/SetInputFiles/Press/Goto
	ActionErr error

	// OnAction runs after an action is recorded and before it returns.
	OnAction func(call Call) error

	// WaitErr is returned by WaitForSelector and WaitForLoadState.
	WaitErr error
}

// NewPage returns a page showing url.
func NewPage(url string) *Page {
	return &Page{url: url}
}

// SetURL changes the URL the page reports.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// SetTitle changes the title the page reports.
func (p *Page) SetTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
}

// Destroy makes every read fail as if the execution context was destroyed.
func (p *Page) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := driver.WrapKind("evaluate", driver.KindContextDestroyed, ErrContextDestroyed)
	p.urlErr = err
	p.titleErr = err
	p.evalErr = err
}

// SetURLErr makes URL fail with err.
func (p *Page) SetURLErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urlErr = err
}

// SetTitleErr makes Title fail with err.
func (p *Page) SetTitleErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.titleErr = err
}

// SetEvalErr makes Evaluate fail with err.
func (p *Page) SetEvalErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evalErr = err
}

// HangEvaluate makes Evaluate block until its context ends.
func (p *Page) HangEvaluate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evalHang = true
}

// Calls returns recorded operations.
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Ops returns the recorded operation names.
func (p *Page) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := make([]string, 0, len(p.calls))
	for _, c := range p.calls {
		ops = append(ops, c.Op)
	}
	return ops
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.urlErr != nil {
		return "", p.urlErr
	}
	return p.url, nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.titleErr != nil {
		return "", p.titleErr
	}
	return p.title, nil
}

func (p *Page) Evaluate(ctx context.Context, expression string) (any, error) {
	p.mu.Lock()
	hang, err := p.evalHang, p.evalErr
	p.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, driver.WrapKind("evaluate", driver.KindTimeout, ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	return true, nil
}

func (p *Page) Click(ctx context.Context, selector string, opts driver.ClickOptions) error {
	return p.act(Call{Op: "click", Selector: selector})
}

func (p *Page) Fill(ctx context.Context, selector, value string, opts driver.FillOptions) error {
	return p.act(Call{Op: "fill", Selector: selector, Value: value})
}

func (p *Page) SetChecked(ctx context.Context, selector string, checked bool) error {
	value := "false"
	if checked {
		value = "true"
	}
	return p.act(Call{Op: "set_checked", Selector: selector, Value: value})
}

func (p *Page) SetInputFiles(ctx context.Context, selector string, paths []string) error {
	return p.act(Call{Op: "set_input_files", Selector: selector, Values: paths})
}

func (p *Page) Press(ctx context.Context, selector, key string) error {
	return p.act(Call{Op: "press", Selector: selector, Value: key})
}

func (p *Page) Goto(ctx context.Context, url string, opts driver.GotoOptions) error {
	if err := p.act(Call{Op: "goto", Value: url, State: string(opts.WaitUntil)}); err != nil {
		return err
	}
	p.SetURL(url)
	return nil
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, opts driver.WaitForSelectorOptions) error {
	p.record(Call{Op: "wait_for_selector", Selector: selector, Value: opts.State})
	return p.WaitErr
}

func (p *Page) WaitForLoadState(ctx context.Context, state driver.LoadState) error {
	p.record(Call{Op: "wait_for_load_state", Value: string(state)})
	return p.WaitErr
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Page) record(c Call) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
}

func (p *Page) act(c Call) error {
	p.record(c)
	if p.OnAction != nil {
		if err := p.OnAction(c); err != nil {
			return err
		}
	}
	return p.ActionErr
}
