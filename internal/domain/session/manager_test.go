package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/widget"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoPage = `<html><body>
<div class="tiny-sandbox" id="demo">
<textarea class="sandbox-html"><b>hi</b></textarea>
<textarea class="sandbox-css">b{color:blue}</textarea>
<textarea class="sandbox-js">console.log(1+1)</textarea>
</div>
</body></html>`

func newManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := NewManager(opts)
	t.Cleanup(m.Close)
	return m
}

func nextEvent(t *testing.T, events <-chan widget.Event, typ widget.EventType) widget.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-events:
			require.True(t, ok, "event stream closed")
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestCreateInitializesWidgets(t *testing.T) {
	m := newManager(t, Options{})
	ctx := context.Background()

	page, err := m.Create(ctx, []byte(demoPage), "inline")
	require.NoError(t, err)
	assert.True(t, id.IsValidPageID(page.ID.String()))
	assert.Equal(t, "inline", page.Source)

	info, err := page.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, []id.WidgetID{"demo"}, info.Widgets)

	require.Eventually(t, func() bool {
		var st widget.State
		_ = page.Do(ctx, func(c *widget.Controller) { st, _ = c.State("demo") })
		return len(st.Console) == 1
	}, 5*time.Second, 10*time.Millisecond)

	out, err := page.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, `<p>[log] 2</p>`)
	assert.Contains(t, out, `class="syntax-error" style="display: none; color: red"`)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	m := newManager(t, Options{})
	ctx := context.Background()

	page, err := m.Create(ctx, []byte(demoPage), "inline")
	require.NoError(t, err)

	events, unsubscribe := page.Subscribe(0)
	defer unsubscribe()

	require.NoError(t, page.Do(ctx, func(c *widget.Controller) {
		require.NoError(t, c.Input("demo", "js", "console.warn('again')"))
		require.NoError(t, c.Run("demo"))
	}))

	rendered := nextEvent(t, events, widget.EventRendered)
	assert.Equal(t, id.WidgetID("demo"), rendered.Widget)

	line := nextEvent(t, events, widget.EventConsole)
	assert.Equal(t, "[warn] again", line.Line)

	loaded := nextEvent(t, events, widget.EventLoaded)
	assert.False(t, loaded.Failed)
	assert.Equal(t, rendered.Generation, loaded.Generation)

	unsubscribe()
	_, open := <-events
	assert.False(t, open)
}

func TestGetListDelete(t *testing.T) {
	m := newManager(t, Options{})
	ctx := context.Background()

	a, err := m.Create(ctx, []byte(demoPage), "a")
	require.NoError(t, err)
	b, err := m.Create(ctx, []byte(demoPage), "b")
	require.NoError(t, err)

	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	pages := m.List()
	require.Len(t, pages, 2)
	assert.Equal(t, 2, m.Count())

	events, _ := b.Subscribe(1)
	require.NoError(t, m.Delete(b.ID))
	_, err = m.Get(b.ID)
	assert.True(t, errors.Is(err, ErrPageNotFound))
	assert.ErrorIs(t, m.Delete(b.ID), ErrPageNotFound)

	// Deleting a page ends its subscriptions.
	for range events {
	}
	assert.Error(t, b.Do(ctx, func(*widget.Controller) {}))
	assert.Equal(t, 1, m.Count())
}

func TestCreateRejectsInvalidPages(t *testing.T) {
	m := newManager(t, Options{MaxPageBytes: 64})
	ctx := context.Background()

	_, err := m.Create(ctx, nil, "inline")
	assert.ErrorIs(t, err, ErrInvalidPage)

	_, err = m.Create(ctx, []byte(demoPage), "inline")
	assert.ErrorIs(t, err, ErrInvalidPage)
	assert.Zero(t, m.Count())
}

func TestCleanupExpiresIdlePages(t *testing.T) {
	m := newManager(t, Options{TTL: 50 * time.Millisecond})
	ctx := context.Background()

	idle, err := m.Create(ctx, []byte(demoPage), "idle")
	require.NoError(t, err)
	busy, err := m.Create(ctx, []byte(demoPage), "busy")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	require.NoError(t, busy.Do(ctx, func(*widget.Controller) {}))

	assert.Equal(t, 1, m.Cleanup())
	assert.NotNil(t, m.LastCleanup())

	_, err = m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrPageNotFound)
	_, err = m.Get(busy.ID)
	assert.NoError(t, err)
}

func TestCleanupLoop(t *testing.T) {
	m := newManager(t, Options{TTL: 20 * time.Millisecond, CleanupInterval: 10 * time.Millisecond})
	m.Start()

	_, err := m.Create(context.Background(), []byte(demoPage), "inline")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestClosedManagerRejectsCreate(t *testing.T) {
	m := NewManager(Options{})
	page, err := m.Create(context.Background(), []byte(demoPage), "inline")
	require.NoError(t, err)

	m.Close()
	m.Close()

	_, err = m.Create(context.Background(), []byte(demoPage), "inline")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, m.Count())
	assert.Error(t, page.Do(context.Background(), func(*widget.Controller) {}))
}

func TestSandboxConfig(t *testing.T) {
	tests := []struct {
		name    string
		sandbox *sandbox.Config
		want    sandbox.Config
	}{
		{name: "unset selects defaults", sandbox: nil, want: sandbox.DefaultConfig()},
		{name: "zero value is kept", sandbox: &sandbox.Config{}, want: sandbox.Config{}},
		{
			name:    "explicit values are kept",
			sandbox: &sandbox.Config{MaxCallStack: 64, MaxConsoleLines: 10},
			want:    sandbox.Config{MaxCallStack: 64, MaxConsoleLines: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, Options{Sandbox: tt.sandbox})
			assert.Equal(t, tt.want, m.runtime.Config())
		})
	}
}

func TestZeroSandboxConfigDisablesDOM(t *testing.T) {
	m := newManager(t, Options{Sandbox: &sandbox.Config{MaxCallStack: 1024}})
	ctx := context.Background()

	page, err := m.Create(ctx, []byte(`<div class="tiny-sandbox" id="w">`+
		`<textarea class="sandbox-js">console.log(typeof document)</textarea></div>`), "inline")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var st widget.State
		_ = page.Do(ctx, func(c *widget.Controller) { st, _ = c.State("w") })
		return len(st.Console) == 1 && st.Console[0] == "[log] undefined"
	}, 5*time.Second, 10*time.Millisecond)
}
