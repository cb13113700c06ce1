package sandbox

import (
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"go.uber.org/zap"
)

// Outcomes records run outcomes. *registry.Registry satisfies it.
type Outcomes interface {
	MarkRunning(wid id.WidgetID)
	MarkSucceeded(wid id.WidgetID)
}

// Listener receives every completed load of a widget's surface on the host loop.
type Listener func(wid id.WidgetID, result *Result)

// Runner owns the isolation surfaces of one host page and renders widgets into them.
// Render and Close must be called on the host loop.
type Runner struct {
	runtime  *Runtime
	outcomes Outcomes
	dispatch Dispatcher
	console  func(Entry)
	logger   *logging.Logger

	surfaces map[id.WidgetID]*Surface
}

// NewRunner creates a runner. console receives every forwarded line on the host loop.
func NewRunner(runtime *Runtime, outcomes Outcomes, dispatch Dispatcher, console func(Entry), logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		runtime:  runtime,
		outcomes: outcomes,
		dispatch: dispatch,
		console:  console,
		logger:   logger,
		surfaces: make(map[id.WidgetID]*Surface),
	}
}

// Render builds the isolated document for the fragments and loads it into the widget's
// surface. The outcome is marked failed before loading, so a document that never signals
// completion leaves the widget failed. The listener is attached when the surface is created
// and ignored on later renders.
func (r *Runner) Render(wid id.WidgetID, fragments Fragments, listener Listener) string {
	surface, ok := r.surfaces[wid]
	if !ok {
		surface = NewSurface(wid, r.runtime, r.dispatch, r.logger)
		surface.SetHandlers(Handlers{
			Console: r.console,
			Success: func() { r.outcomes.MarkSucceeded(wid) },
			Load: func(result *Result) {
				if listener != nil {
					listener(wid, result)
				}
			},
		})
		r.surfaces[wid] = surface
	}

	r.outcomes.MarkRunning(wid)
	document := BuildDocument(wid, fragments)
	gen := surface.Load(document)

	r.logger.Debug("rendering widget",
		zap.String("widget", wid.String()),
		zap.Uint64("generation", gen),
		zap.Int("bytes", len(document)))
	return document
}

// Surface returns a widget's surface if it has rendered.
func (r *Runner) Surface(wid id.WidgetID) (*Surface, bool) {
	s, ok := r.surfaces[wid]
	return s, ok
}

// Close closes every surface.
func (r *Runner) Close() {
	for wid, s := range r.surfaces {
		s.Close()
		delete(r.surfaces, wid)
	}
}
