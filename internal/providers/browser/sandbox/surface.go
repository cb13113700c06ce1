package sandbox

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"go.uber.org/zap"
)

// Dispatcher runs a task on the host loop.
type Dispatcher func(func())

// Handlers receive a surface's signals on the host loop. Nil handlers are skipped.
type Handlers struct {
	Console func(Entry)
	Success func()
	Load    func(*Result)
}

// Surface is one widget's isolated execution surface. Each Load replaces the previous
// document wholesale: the previous run is interrupted and anything it still signals is
// dropped, so only the newest document can reach the host.
type Surface struct {
	widget   id.WidgetID
	runtime  *Runtime
	dispatch Dispatcher
	logger   *logging.Logger

	mu         sync.Mutex
	handlers   Handlers
	generation uint64
	cancel     context.CancelFunc
	document   string
	last       *Result
	closed     bool
	dropped    int

	wg sync.WaitGroup
}

// NewSurface creates an empty surface for a widget.
func NewSurface(wid id.WidgetID, runtime *Runtime, dispatch Dispatcher, logger *logging.Logger) *Surface {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Surface{
		widget:   wid,
		runtime:  runtime,
		dispatch: dispatch,
		logger:   logger.ForWidget(wid.String()),
	}
}

// SetHandlers replaces the signal handlers.
func (s *Surface) SetHandlers(h Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

// Load replaces the surface content with document and starts running it. It returns the new
// generation, or zero after Close.
func (s *Surface) Load(document string) uint64 {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.document = document
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()

		result := s.runtime.Load(ctx, document, &loadHost{surface: s, generation: gen})
		result.Generation = gen
		s.post(gen, func(h Handlers) {
			s.mu.Lock()
			s.last = result
			s.mu.Unlock()
			if h.Load != nil {
				h.Load(result)
			}
		})
	}()
	return gen
}

// ID returns the owning widget.
func (s *Surface) ID() id.WidgetID { return s.widget }

// Document returns the document most recently loaded.
func (s *Surface) Document() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document
}

// Generation returns the number of loads so far.
func (s *Surface) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// LastResult returns the most recent load that completed, or nil.
func (s *Surface) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Dropped counts signals discarded because they were stale, named another widget or went past
// the console line cap.
func (s *Surface) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close interrupts the running document and waits for it to stop. Later signals are dropped.
func (s *Surface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// post delivers a signal on the host loop if gen is still the current generation.
func (s *Surface) post(gen uint64, deliver func(Handlers)) {
	s.dispatch(func() {
		s.mu.Lock()
		if gen != s.generation {
			s.dropped++
			s.mu.Unlock()
			return
		}
		h := s.handlers
		s.mu.Unlock()
		deliver(h)
	})
}

func (s *Surface) drop(reason string, wid id.WidgetID) {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
	s.logger.Debug("dropped signal", zap.String("reason", reason), zap.String("target", wid.String()))
}

// loadHost binds one load of a surface to the document it runs.
type loadHost struct {
	surface    *Surface
	generation uint64
	lines      atomic.Int64
}

func (h *loadHost) ID() id.WidgetID { return h.surface.widget }

func (h *loadHost) Logger(wid id.WidgetID) *Forwarder {
	if wid != h.surface.widget {
		h.surface.drop("foreign logger", wid)
		return NewForwarder(wid, nil)
	}
	return NewForwarder(wid, h.forward)
}

// forward posts one console line. Past the cap a single warning is posted in place of the
// first extra line and everything after it is dropped.
func (h *loadHost) forward(e Entry) {
	limit := int64(h.surface.runtime.config.MaxConsoleLines)
	if n := h.lines.Add(1); limit > 0 && n > limit {
		if n > limit+1 {
			h.surface.mu.Lock()
			h.surface.dropped++
			h.surface.mu.Unlock()
			return
		}
		h.surface.logger.Warn("console output truncated", zap.Int64("limit", limit))
		e.Category = CategoryWarn
		e.Line = FormatLine(CategoryWarn, []string{TruncatedMessage})
	}
	h.surface.post(h.generation, func(hs Handlers) {
		if hs.Console != nil {
			hs.Console(e)
		}
	})
}

func (h *loadHost) Success(wid id.WidgetID) {
	if wid != h.surface.widget {
		h.surface.drop("foreign success", wid)
		return
	}
	h.surface.post(h.generation, func(hs Handlers) {
		if hs.Success != nil {
			hs.Success()
		}
	})
}
