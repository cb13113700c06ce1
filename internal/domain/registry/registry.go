package registry

import (
	"sort"
	"sync"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
)

// Outcome is the recorded result of a widget's latest render.
type Outcome int

const (
	// OutcomeNone means no render has started yet.
	OutcomeNone Outcome = iota
	// OutcomeFailed means a render started and has not signaled completion.
	OutcomeFailed
	// OutcomeSucceeded means the latest render's script finished running.
	OutcomeSucceeded
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeFailed:
		return "failed"
	case OutcomeSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// Registry is the bookkeeping table for widget initialization and run outcomes.
// Every operation is infallible.
type Registry struct {
	mu          sync.RWMutex
	initialized map[id.WidgetID]struct{}
	outcomes    map[id.WidgetID]Outcome
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		initialized: make(map[id.WidgetID]struct{}),
		outcomes:    make(map[id.WidgetID]Outcome),
	}
}

// IsKnown reports whether the widget was already initialized.
func (r *Registry) IsKnown(wid id.WidgetID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.initialized[wid]
	return ok
}

// MarkInitialized records the widget as initialized. Repeated calls are no-ops.
func (r *Registry) MarkInitialized(wid id.WidgetID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized[wid] = struct{}{}
}

// MarkRunning records the pessimistic "failed" outcome at the start of a render.
func (r *Registry) MarkRunning(wid id.WidgetID) {
	r.setOutcome(wid, OutcomeFailed)
}

// MarkSucceeded records that the widget's isolated script finished running.
func (r *Registry) MarkSucceeded(wid id.WidgetID) {
	r.setOutcome(wid, OutcomeSucceeded)
}

// HasFailedOutcome is true when no outcome was recorded yet or the latest one is failed.
func (r *Registry) HasFailedOutcome(wid id.WidgetID) bool {
	return r.Outcome(wid) != OutcomeSucceeded
}

// Outcome returns the recorded outcome for the widget.
func (r *Registry) Outcome(wid id.WidgetID) Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.outcomes[wid]
}

// Len returns the number of initialized widgets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.initialized)
}

// IDs returns the initialized widget identities in sorted order.
func (r *Registry) IDs() []id.WidgetID {
	r.mu.RLock()
	ids := make([]id.WidgetID, 0, len(r.initialized))
	for wid := range r.initialized {
		ids = append(ids, wid)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Reset forgets every widget. Used when the owning controller is closed.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = make(map[id.WidgetID]struct{})
	r.outcomes = make(map[id.WidgetID]Outcome)
}

func (r *Registry) setOutcome(wid id.WidgetID, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[wid] = o
}
