// Package eventloop runs host page work on a single goroutine.
//
// Everything that touches a host document (widget discovery, field edits, console panel
// appends, indicator toggles) is posted to the page's Loop and executed in FIFO order, so
// the document itself needs no locking. Work that must not block the loop, such as running
// an isolated script, happens elsewhere and posts its results back.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/logging"
)

// ErrClosed is returned when work is submitted to a stopped loop.
var ErrClosed = errors.New("event loop is closed")

// Loop is a single-goroutine task queue with an unbounded backlog. Posting never blocks, so
// tasks may post follow-up tasks.
type Loop struct {
	logger *logging.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New creates a stopped loop. Call Start to begin processing.
func New(logger *logging.Logger) *Loop {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start runs the loop on its own goroutine.
func (l *Loop) Start() {
	go l.run()
}

// Post enqueues a task. It reports false if the loop is closed.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Dispatch is Post without the result, usable as a plain func(func()).
func (l *Loop) Dispatch(task func()) {
	if !l.Post(task) {
		l.logger.Debug("dropped task posted after close")
	}
}

// Do runs task on the loop and waits for it to finish. It must not be called from a task
// already running on the loop.
func (l *Loop) Do(ctx context.Context, task func()) error {
	finished := make(chan struct{})
	var panicErr error
	if !l.Post(func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				panicErr = fmt.Errorf("task panicked: %v", r)
			}
		}()
		task()
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return panicErr
	case <-l.done:
		// The loop may have drained our task just before stopping.
		select {
		case <-finished:
			return panicErr
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop after the tasks already queued have run.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the loop goroutine exits.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for range l.wake {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				closed := l.closed
				l.mu.Unlock()
				if closed {
					return
				}
				break
			}
			task := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.runTask(task)
		}
	}
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
