package sandbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/registry"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/eventloop"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signals records handler calls; handlers run on the loop but tests read from outside it.
type signals struct {
	mu        sync.Mutex
	lines     []string
	successes int
	loads     []*Result
}

func (s *signals) handlers() Handlers {
	return Handlers{
		Console: func(e Entry) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.lines = append(s.lines, e.Line)
		},
		Success: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.successes++
		},
		Load: func(r *Result) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.loads = append(s.loads, r)
		},
	}
}

func (s *signals) snapshot() ([]string, int, []*Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...), s.successes, append([]*Result(nil), s.loads...)
}

func newLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	loop := eventloop.New(nil)
	loop.Start()
	t.Cleanup(loop.Close)
	return loop
}

func onLoop(t *testing.T, loop *eventloop.Loop, fn func()) {
	t.Helper()
	require.NoError(t, loop.Do(context.Background(), fn))
}

func TestSurfaceDeliversSignals(t *testing.T) {
	loop := newLoop(t)
	surface := NewSurface("w", New(DefaultConfig(), nil), loop.Dispatch, nil)
	rec := &signals{}
	surface.SetHandlers(rec.handlers())
	t.Cleanup(surface.Close)

	var gen uint64
	onLoop(t, loop, func() {
		gen = surface.Load(BuildDocument("w", Fragments{JS: "console.log('hello')"}))
	})
	assert.Equal(t, uint64(1), gen)

	require.Eventually(t, func() bool {
		_, _, loads := rec.snapshot()
		return len(loads) == 1
	}, 5*time.Second, 10*time.Millisecond)

	lines, successes, loads := rec.snapshot()
	assert.Equal(t, []string{"[log] hello"}, lines)
	assert.Equal(t, 1, successes)
	assert.Equal(t, uint64(1), loads[0].Generation)
	assert.Same(t, loads[0], surface.LastResult())
	assert.Contains(t, surface.Document(), "console.log('hello')")
}

func TestSurfaceDropsSupersededLoad(t *testing.T) {
	loop := newLoop(t)
	surface := NewSurface("w", New(DefaultConfig(), nil), loop.Dispatch, nil)
	rec := &signals{}
	surface.SetHandlers(rec.handlers())
	t.Cleanup(surface.Close)

	onLoop(t, loop, func() {
		// The first document logs, then spins until the second load interrupts it.
		surface.Load(BuildDocument("w", Fragments{JS: "console.log('first'); while (true) {}"}))
		surface.Load(BuildDocument("w", Fragments{JS: "console.log('second')"}))
	})

	require.Eventually(t, func() bool {
		_, _, loads := rec.snapshot()
		return len(loads) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Give the interrupted load time to post its stale signals.
	require.Eventually(t, func() bool {
		return surface.Dropped() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	lines, successes, loads := rec.snapshot()
	assert.Equal(t, []string{"[log] second"}, lines)
	assert.Equal(t, 1, successes)
	assert.Equal(t, uint64(2), loads[0].Generation)
	assert.Equal(t, uint64(2), surface.Generation())
}

func TestSurfaceDropsForeignIdentity(t *testing.T) {
	loop := newLoop(t)
	surface := NewSurface("w", New(DefaultConfig(), nil), loop.Dispatch, nil)
	rec := &signals{}
	surface.SetHandlers(rec.handlers())
	t.Cleanup(surface.Close)

	js := "window.parent.tinySandbox.success('other');" +
		"window.parent.tinySandbox.logger('other').log('spoofed');" +
		"console.log('own')"
	onLoop(t, loop, func() {
		surface.Load(BuildDocument("w", Fragments{JS: js}))
	})

	require.Eventually(t, func() bool {
		_, _, loads := rec.snapshot()
		return len(loads) == 1
	}, 5*time.Second, 10*time.Millisecond)

	lines, successes, _ := rec.snapshot()
	assert.Equal(t, []string{"[log] own"}, lines)
	assert.Equal(t, 1, successes)
	assert.GreaterOrEqual(t, surface.Dropped(), 2)
}

func TestSurfaceCapsConsoleLines(t *testing.T) {
	config := DefaultConfig()
	config.MaxConsoleLines = 3

	loop := newLoop(t)
	surface := NewSurface("w", New(config, nil), loop.Dispatch, nil)
	rec := &signals{}
	surface.SetHandlers(rec.handlers())
	t.Cleanup(surface.Close)

	onLoop(t, loop, func() {
		surface.Load(BuildDocument("w", Fragments{JS: "for (var i = 0; i < 10; i++) { console.log(i) }"}))
	})

	require.Eventually(t, func() bool {
		_, _, loads := rec.snapshot()
		return len(loads) == 1
	}, 5*time.Second, 10*time.Millisecond)

	lines, successes, _ := rec.snapshot()
	assert.Equal(t, []string{"[log] 0", "[log] 1", "[log] 2", "[warn] " + TruncatedMessage}, lines)
	assert.Equal(t, 1, successes)
	assert.Equal(t, 6, surface.Dropped())

	// The cap is per load.
	onLoop(t, loop, func() {
		surface.Load(BuildDocument("w", Fragments{JS: "console.log('again')"}))
	})
	require.Eventually(t, func() bool {
		_, _, loads := rec.snapshot()
		return len(loads) == 2
	}, 5*time.Second, 10*time.Millisecond)

	lines, _, _ = rec.snapshot()
	assert.Equal(t, "[log] again", lines[len(lines)-1])
}

func TestSurfaceCapsRunawayConsole(t *testing.T) {
	config := DefaultConfig()
	config.MaxConsoleLines = 5
	config.Timeout = 200 * time.Millisecond

	loop := newLoop(t)
	surface := NewSurface("w", New(config, nil), loop.Dispatch, nil)
	rec := &signals{}
	surface.SetHandlers(rec.handlers())
	t.Cleanup(surface.Close)

	onLoop(t, loop, func() {
		surface.Load(BuildDocument("w", Fragments{JS: "while (true) { console.log('x') }"}))
	})

	require.Eventually(t, func() bool {
		_, _, loads := rec.snapshot()
		return len(loads) == 1
	}, 5*time.Second, 10*time.Millisecond)

	lines, successes, loads := rec.snapshot()
	require.Len(t, lines, 6)
	assert.Equal(t, "[warn] "+TruncatedMessage, lines[5])
	assert.Zero(t, successes)
	assert.True(t, loads[0].Interrupted)
	assert.Greater(t, surface.Dropped(), 0)
}

func TestSurfaceCloseInterrupts(t *testing.T) {
	loop := newLoop(t)
	surface := NewSurface("w", New(DefaultConfig(), nil), loop.Dispatch, nil)
	rec := &signals{}
	surface.SetHandlers(rec.handlers())

	onLoop(t, loop, func() {
		surface.Load(BuildDocument("w", Fragments{JS: "while (true) {}"}))
	})

	done := make(chan struct{})
	go func() {
		surface.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not interrupt the running script")
	}

	// Drain whatever the interrupted load posted.
	onLoop(t, loop, func() {})

	_, successes, loads := rec.snapshot()
	assert.Zero(t, successes)
	assert.Empty(t, loads)
	assert.Zero(t, surface.Load("<script></script>"))
}

func TestRunnerRender(t *testing.T) {
	loop := newLoop(t)
	reg := registry.New()

	var mu sync.Mutex
	var lines []string
	console := func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, e.Line)
	}
	runner := NewRunner(New(DefaultConfig(), nil), reg, loop.Dispatch, console, nil)
	t.Cleanup(func() { _ = loop.Do(context.Background(), runner.Close) })

	loaded := make(chan bool, 4)
	listener := func(wid id.WidgetID, r *Result) {
		loaded <- reg.HasFailedOutcome(wid)
	}

	var document string
	onLoop(t, loop, func() {
		document = runner.Render("w", Fragments{JS: "console.log(1+1)"}, listener)
		// Marked failed until the document reports completion
		assert.True(t, reg.HasFailedOutcome("w"))
	})
	assert.Contains(t, document, "console.log(1+1)")

	select {
	case failed := <-loaded:
		assert.False(t, failed)
	case <-time.After(5 * time.Second):
		t.Fatal("no load event")
	}
	assert.Equal(t, registry.OutcomeSucceeded, reg.Outcome("w"))

	mu.Lock()
	assert.Equal(t, []string{"[log] 2"}, lines)
	mu.Unlock()

	// A later render keeps the surface and its first listener.
	first, ok := runner.Surface("w")
	require.True(t, ok)
	ignored := func(id.WidgetID, *Result) { t.Error("second listener must not be attached") }
	onLoop(t, loop, func() {
		runner.Render("w", Fragments{JS: "console.log("}, ignored)
	})

	select {
	case failed := <-loaded:
		assert.True(t, failed)
	case <-time.After(5 * time.Second):
		t.Fatal("no load event")
	}
	second, _ := runner.Surface("w")
	assert.Same(t, first, second)
	assert.Equal(t, registry.OutcomeFailed, reg.Outcome("w"))
	assert.Equal(t, 1, second.LastResult().SyntaxErrors())
}
