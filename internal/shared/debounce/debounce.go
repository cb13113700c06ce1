// Package debounce coalesces bursts of events into one trailing action.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delays an action until no new Schedule call arrived for the configured window.
// Only the action passed to the last Schedule of a burst runs.
type Debouncer struct {
	delay    time.Duration
	dispatch func(func())

	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	seq      uint64
}

// New creates a debouncer. When dispatch is non-nil the action is handed to it instead of
// being run on the timer goroutine; host pages pass their event loop's Dispatch here.
func New(delay time.Duration, dispatch func(func())) *Debouncer {
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	return &Debouncer{delay: delay, dispatch: dispatch}
}

// Schedule cancels any pending action and arms the timer for action.
func (d *Debouncer) Schedule(action func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.seq++
	seq := d.seq
	d.deadline = time.Now().Add(d.delay)
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A timer that fired while Schedule or Cancel held the lock is stale.
		if seq != d.seq || d.timer == nil {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.deadline = time.Time{}
		d.mu.Unlock()

		d.dispatch(action)
	})
}

// Cancel drops the pending action, if any. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := d.timer != nil
	d.stopLocked()
	d.seq++
	return pending
}

// Pending returns the deadline of the pending action.
func (d *Debouncer) Pending() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deadline, d.timer != nil
}

// Delay returns the debounce window.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.deadline = time.Time{}
}
