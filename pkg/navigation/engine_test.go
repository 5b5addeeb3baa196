package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/entrhq/pagekeeper/internal/testing/browsertest"
	"github.com/entrhq/pagekeeper/pkg/driver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingDelay records requested waits without sleeping
type recordingDelay struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingDelay) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
}

func (r *recordingDelay) policy(d time.Duration) FixedDelay {
	return FixedDelay{Delay: d, Sleep: r.sleep}
}

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(append([]Option{WithRecovery(NoDelay)}, opts...)...)
}

func TestReconnectOriginalStillValid(t *testing.T) {
	original := browsertest.NewPage("https://example.com/form")
	other := browsertest.NewPage("https://example.com/other")
	conn := browsertest.NewConnection(original, other)

	out := newTestEngine().Reconnect(context.Background(), conn, original, "https://example.com/form", ReconnectOptions{})

	assert.True(t, out.Success)
	assert.True(t, out.Reconnected)
	assert.False(t, out.PageReconnected)
	assert.False(t, out.ContextDestroyed)
	assert.Same(t, original, out.ActivePage)
	assert.True(t, out.URLKnown)
	assert.False(t, out.URLChanged)
	assert.Equal(t, 0, conn.PagesCalls(), "a valid original page must not trigger page enumeration")
}

func TestReconnectOriginalValidAfterSameDocumentNavigation(t *testing.T) {
	original := browsertest.NewPage("https://example.com/app#step2")
	conn := browsertest.NewConnection(original)

	out := newTestEngine().Reconnect(context.Background(), conn, original, "https://example.com/app#step1", ReconnectOptions{})

	assert.True(t, out.Success)
	assert.False(t, out.PageReconnected)
	assert.True(t, out.URLChanged)
	assert.Equal(t, "https://example.com/app#step2", out.Details[DetailNewURL])
}

func TestReconnectContextDestroyed(t *testing.T) {
	original := browsertest.NewPage("https://example.com/login")
	original.Destroy()
	first := browsertest.NewPage("https://example.com/login")
	newest := browsertest.NewPage("https://example.com/dashboard")
	newest.SetTitle("Dashboard")
	conn := browsertest.NewConnection(first, newest)

	out := newTestEngine().Reconnect(context.Background(), conn, original, "https://example.com/login", ReconnectOptions{})

	assert.True(t, out.Success)
	assert.True(t, out.Reconnected)
	assert.True(t, out.PageReconnected)
	assert.True(t, out.ContextDestroyed)
	assert.Same(t, newest, out.ActivePage)
	assert.True(t, out.URLKnown)
	assert.True(t, out.URLChanged)
	assert.Equal(t, 2, out.Details[DetailPageCount])
	assert.Equal(t, "Dashboard", out.Details[DetailNewTitle])
	assert.Equal(t, PhaseValidateReconnect, out.Details[DetailPhase])
	assert.Equal(t, "context_destroyed", out.Details[DetailErrorKind])
}

func TestReconnectUnexpectedErrorStillReconnects(t *testing.T) {
	original := browsertest.NewPage("https://example.com")
	original.SetURLErr(errors.New("something odd happened"))
	replacement := browsertest.NewPage("https://example.com")
	conn := browsertest.NewConnection(replacement)

	out := newTestEngine().Reconnect(context.Background(), conn, original, "https://example.com", ReconnectOptions{})

	assert.True(t, out.Success)
	assert.True(t, out.PageReconnected)
	assert.False(t, out.ContextDestroyed)
	assert.Equal(t, true, out.Details[DetailUnexpectedError])
	assert.Same(t, replacement, out.ActivePage)
	assert.False(t, out.URLChanged)
}

func TestReconnectNoPages(t *testing.T) {
	original := browsertest.NewPage("https://example.com")
	original.Destroy()
	conn := browsertest.NewConnection()

	out := newTestEngine().Reconnect(context.Background(), conn, original, "https://example.com", ReconnectOptions{})

	assert.False(t, out.Success)
	assert.False(t, out.PageReconnected)
	assert.True(t, out.ContextDestroyed)
	assert.Nil(t, out.ActivePage)
	assert.Equal(t, 0, out.Details[DetailPageCount])
}

func TestReconnectCandidateUnreadable(t *testing.T) {
	original := browsertest.NewPage("https://example.com")
	original.Destroy()
	candidate := browsertest.NewPage("https://example.com/next")
	candidate.SetTitleErr(errors.New("Target closed"))
	conn := browsertest.NewConnection(candidate)

	out := newTestEngine().Reconnect(context.Background(), conn, original, "https://example.com", ReconnectOptions{})

	assert.True(t, out.Success)
	assert.True(t, out.PageReconnected)
	assert.Same(t, candidate, out.ActivePage)
	assert.False(t, out.URLKnown)
	assert.Equal(t, true, out.Details[DetailURLUnknown])
}

func TestReconnectConnectionLost(t *testing.T) {
	t.Run("with session id", func(t *testing.T) {
		conn := browsertest.NewConnection(browsertest.NewPage("https://example.com"))
		conn.SetProbeErr(driver.WrapKind("probe", driver.KindConnectionLost, errors.New("Browser has been closed")))

		out := newTestEngine().Reconnect(context.Background(), conn, nil, "https://example.com", ReconnectOptions{SessionID: "s1"})

		assert.False(t, out.Success)
		assert.True(t, out.ContextDestroyed)
		assert.Equal(t, true, out.Details[DetailRequiresSessionReconnect])
		assert.Equal(t, "connection_lost", out.Details[DetailErrorKind])
		assert.Equal(t, 0, conn.PagesCalls())
	})

	t.Run("without session id", func(t *testing.T) {
		out := newTestEngine().Reconnect(context.Background(), nil, nil, "https://example.com", ReconnectOptions{})

		assert.False(t, out.Success)
		assert.True(t, out.ContextDestroyed)
		assert.NotContains(t, out.Details, DetailRequiresSessionReconnect)
	})
}

func TestReconnectUsesRecoveryPolicy(t *testing.T) {
	rec := &recordingDelay{}
	page := browsertest.NewPage("https://example.com")
	conn := browsertest.NewConnection(page)

	engine := NewEngine(WithRecovery(rec.policy(5 * time.Second)))
	engine.Reconnect(context.Background(), conn, page, "https://example.com", ReconnectOptions{})
	engine.Reconnect(context.Background(), conn, page, "https://example.com", ReconnectOptions{Recovery: rec.policy(time.Second)})

	assert.Equal(t, []time.Duration{5 * time.Second, time.Second}, rec.waits)
}

func TestReconnectCustomSelector(t *testing.T) {
	original := browsertest.NewPage("https://example.com")
	original.Destroy()
	first := browsertest.NewPage("https://example.com/first")
	conn := browsertest.NewConnection(first, browsertest.NewPage("https://example.com/second"))

	firstPage := PageSelectorFunc(func(pages []driver.Page) driver.Page {
		if len(pages) == 0 {
			return nil
		}
		return pages[0]
	})

	out := newTestEngine(WithPageSelector(firstPage)).Reconnect(context.Background(), conn, original, "https://example.com", ReconnectOptions{})
	assert.Same(t, first, out.ActivePage)
}

func TestFixedDelayNonPositive(t *testing.T) {
	called := false
	FixedDelay{Delay: 0, Sleep: func(time.Duration) { called = true }}.Wait()
	assert.False(t, called)
}

func TestLocator(t *testing.T) {
	ctx := context.Background()

	t.Run("last page", func(t *testing.T) {
		last := browsertest.NewPage("https://example.com/b")
		conn := browsertest.NewConnection(browsertest.NewPage("https://example.com/a"), last)

		got, ok := NewLocator().Locate(ctx, conn)
		require.True(t, ok)
		assert.Same(t, last, got)
	})

	t.Run("disconnected", func(t *testing.T) {
		conn := browsertest.NewConnection(browsertest.NewPage("https://example.com"))
		conn.SetConnected(false)

		_, ok := NewLocator().Locate(ctx, conn)
		assert.False(t, ok)
		assert.Equal(t, 0, conn.PagesCalls())
	})

	t.Run("no pages", func(t *testing.T) {
		_, ok := NewLocator().Locate(ctx, browsertest.NewConnection())
		assert.False(t, ok)
	})

	t.Run("unresponsive candidate", func(t *testing.T) {
		p := browsertest.NewPage("https://example.com")
		p.HangEvaluate()
		l := &Locator{ResponsiveTimeout: 10 * time.Millisecond}

		_, ok := l.Locate(ctx, browsertest.NewConnection(p))
		assert.False(t, ok)
	})

	t.Run("evaluation error", func(t *testing.T) {
		p := browsertest.NewPage("https://example.com")
		p.Destroy()

		_, ok := NewLocator().Locate(ctx, browsertest.NewConnection(p))
		assert.False(t, ok)
	})
}
