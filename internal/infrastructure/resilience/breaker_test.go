package resilience

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(settings Settings) (*Breaker, *clock) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	b := New("test", settings)
	b.now = clk.Now
	b.expiry = clk.Now().Add(b.settings.Interval)
	return b, clk
}

func tripAfter(n uint32) func(Counts) bool {
	return func(counts Counts) bool { return counts.ConsecutiveFailures >= n }
}

func run(b *Breaker, success bool) error {
	return b.Do(func() error {
		if success {
			return nil
		}
		return errUpstream
	})
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{},
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name:          "opens after consecutive failures",
			settings:      Settings{ReadyToTrip: tripAfter(3)},
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name:          "a success resets the streak",
			settings:      Settings{ReadyToTrip: tripAfter(3)},
			requests:      []bool{false, false, true, false, false},
			expectedState: StateClosed,
		},
		{
			name:          "default trips after six failures",
			settings:      Settings{},
			requests:      []bool{false, false, false, false, false, false},
			expectedState: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker, _ := newTestBreaker(tt.settings)

			for _, success := range tt.requests {
				_ = run(breaker, success)
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{})

	require.NoError(t, run(breaker, true))

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)
	assert.Equal(t, uint32(0), counts.TotalFailures)

	assert.ErrorIs(t, run(breaker, false), errUpstream)

	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerIntervalClearsCounts(t *testing.T) {
	breaker, clk := newTestBreaker(Settings{Interval: time.Minute, ReadyToTrip: tripAfter(3)})

	_ = run(breaker, false)
	_ = run(breaker, false)
	clk.Advance(2 * time.Minute)
	_ = run(breaker, false)

	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(1), breaker.Counts().ConsecutiveFailures)
}

func TestBreakerOpenState(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{ReadyToTrip: tripAfter(2)})

	_ = run(breaker, false)
	_ = run(breaker, false)
	require.Equal(t, StateOpen, breaker.State())

	called := false
	err := breaker.Do(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenState(t *testing.T) {
	breaker, clk := newTestBreaker(Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: tripAfter(2),
	})

	_ = run(breaker, false)
	_ = run(breaker, false)
	require.Equal(t, StateOpen, breaker.State())

	clk.Advance(31 * time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, run(breaker, true))
	assert.Equal(t, StateHalfOpen, breaker.State())
	require.NoError(t, run(breaker, true))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker, clk := newTestBreaker(Settings{Timeout: 30 * time.Second, ReadyToTrip: tripAfter(1)})

	_ = run(breaker, false)
	clk.Advance(31 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	_ = run(breaker, false)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerHalfOpenLimitsTrialCalls(t *testing.T) {
	breaker, clk := newTestBreaker(Settings{Timeout: time.Second, ReadyToTrip: tripAfter(1)})

	_ = run(breaker, false)
	clk.Advance(2 * time.Second)

	// The single trial call is still running when a second one arrives.
	err := breaker.Do(func() error {
		assert.ErrorIs(t, run(breaker, true), ErrTooManyRequests)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	errClient := errors.New("bad input")
	breaker, _ := newTestBreaker(Settings{
		ReadyToTrip: tripAfter(2),
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, errClient)
		},
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, breaker.Do(func() error {
			return fmt.Errorf("wrapped: %w", errClient)
		}), errClient)
	}

	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(5), breaker.Counts().TotalSuccesses)
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{ReadyToTrip: tripAfter(1)})

	assert.Panics(t, func() {
		_ = breaker.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string

	breaker, clk := newTestBreaker(Settings{
		Timeout:     10 * time.Second,
		ReadyToTrip: tripAfter(2),
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = run(breaker, false)
	_ = run(breaker, false)
	clk.Advance(11 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())
	require.NoError(t, run(breaker, true))

	assert.Equal(t, []string{
		"test:closed->open",
		"test:open->half-open",
		"test:half-open->closed",
	}, transitions)
}

func TestCall(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{})

	got, err := Call(breaker, func() (string, error) { return "page", nil })
	require.NoError(t, err)
	assert.Equal(t, "page", got)

	_, err = Call(breaker, func() (int, error) { return 0, errUpstream })
	assert.ErrorIs(t, err, errUpstream)
}

func TestGroup(t *testing.T) {
	group := NewGroup("fetch", Settings{ReadyToTrip: tripAfter(1)}, 2)

	a := group.Get("a.example")
	assert.Same(t, a, group.Get("a.example"))
	assert.Equal(t, "fetch:a.example", a.Name())

	_ = run(a, false)
	assert.Equal(t, []string{"a.example"}, group.Open())
	assert.Equal(t, StateClosed, group.Get("b.example").State())

	// Full: the closed breaker is forgotten, the open one is kept.
	group.Get("c.example")
	assert.Equal(t, 2, group.Len())
	states := group.States()
	assert.Equal(t, StateOpen, states["a.example"])
	assert.Contains(t, states, "c.example")
	assert.NotContains(t, states, "b.example")
}
