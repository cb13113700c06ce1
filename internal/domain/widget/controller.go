package widget

import (
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/registry"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/debounce"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last edit before a re-render.
const DefaultDebounce = 500 * time.Millisecond

var (
	ErrUnknownWidget = errors.New("unknown widget")
	ErrUnknownField  = errors.New("unknown field")
	ErrClosed        = errors.New("controller closed")
)

// debouncedFields re-render on edit; the JS field waits for Run.
var debouncedFields = []browser.Field{browser.FieldHTML, browser.FieldCSS}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Debounce  time.Duration
	Generator *id.WidgetIDGenerator
	Runtime   *sandbox.Runtime
	Observer  Observer
	Metrics   *monitoring.Metrics
	Logger    *logging.Logger
}

// Controller owns the widgets of one host page.
type Controller struct {
	doc      *browser.Document
	editor   *browser.EditorBridge
	registry *registry.Registry
	runner   *sandbox.Runner
	ids      *id.WidgetIDGenerator
	dispatch sandbox.Dispatcher
	delay    time.Duration

	debouncers map[id.WidgetID]map[browser.Field]*debounce.Debouncer

	observer Observer
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	closed   bool
}

// New creates a controller for doc. dispatch must post tasks onto the loop that owns doc.
func New(doc *browser.Document, dispatch sandbox.Dispatcher, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Generator == nil {
		opts.Generator = id.NewWidgetIDGenerator(id.WidgetIDConfig{})
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Runtime == nil {
		opts.Runtime = sandbox.New(sandbox.DefaultConfig(), opts.Logger)
	}

	c := &Controller{
		doc:        doc,
		editor:     browser.NewEditorBridge(doc),
		registry:   registry.New(),
		ids:        opts.Generator,
		dispatch:   dispatch,
		delay:      opts.Debounce,
		debouncers: make(map[id.WidgetID]map[browser.Field]*debounce.Debouncer),
		observer:   opts.Observer,
		metrics:    opts.Metrics,
		logger:     opts.Logger.Named("widget"),
	}
	c.runner = sandbox.NewRunner(opts.Runtime, c.registry, dispatch, c.onConsole, c.logger)
	return c
}

// Scan initializes every container not seen before and returns the identities it initialized,
// in document order. Scanning again is a no-op for known widgets.
func (c *Controller) Scan() []id.WidgetID {
	if c.closed {
		return nil
	}

	var initialized []id.WidgetID
	for _, container := range c.doc.Containers() {
		wid := browser.ContainerID(container)
		if wid != "" && c.registry.IsKnown(wid) {
			continue
		}
		if wid == "" {
			wid = c.newID()
			browser.AssignID(container, wid)
		}

		browser.NormalizeAttributes(container)
		c.doc.EnsureChrome(wid)
		c.registry.MarkInitialized(wid)
		c.metrics.IncWidgetsInitialized()
		c.logger.Debug("widget initialized", zap.String("widget", wid.String()))
		c.emit(Event{Type: EventInitialized, Widget: wid})

		c.render(wid)

		fields := make(map[browser.Field]*debounce.Debouncer, len(debouncedFields))
		for _, f := range debouncedFields {
			if c.editor.HasField(wid, f) {
				fields[f] = debounce.New(c.delay, c.dispatch)
			}
		}
		c.debouncers[wid] = fields
		initialized = append(initialized, wid)
	}
	return initialized
}

// Input replaces a field's text. HTML and CSS edits schedule a debounced render.
func (c *Controller) Input(wid id.WidgetID, field browser.Field, value string) error {
	if c.closed {
		return ErrClosed
	}
	if !c.registry.IsKnown(wid) {
		return fmt.Errorf("%w: %s", ErrUnknownWidget, wid)
	}
	if !c.editor.WriteField(wid, field, value) {
		return fmt.Errorf("%w: %s has no %s field", ErrUnknownField, wid, field)
	}

	d, ok := c.debouncers[wid][field]
	if !ok {
		return nil
	}
	if _, pending := d.Pending(); pending {
		c.metrics.IncDebounceCoalesced()
	}
	d.Schedule(func() { c.render(wid) })
	return nil
}

// Run renders a widget immediately, as its run button does.
func (c *Controller) Run(wid id.WidgetID) error {
	if c.closed {
		return ErrClosed
	}
	if !c.registry.IsKnown(wid) {
		return fmt.Errorf("%w: %s", ErrUnknownWidget, wid)
	}
	c.render(wid)
	return nil
}

// Close cancels pending renders, stops every surface and forgets all widgets.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	for _, fields := range c.debouncers {
		for _, d := range fields {
			d.Cancel()
		}
	}
	c.debouncers = map[id.WidgetID]map[browser.Field]*debounce.Debouncer{}
	c.runner.Close()
	c.registry.Reset()
}

// Widgets returns the initialized identities in sorted order.
func (c *Controller) Widgets() []id.WidgetID {
	return c.registry.IDs()
}

// Registry exposes the run-outcome registry.
func (c *Controller) Registry() *registry.Registry {
	return c.registry
}

// newID draws identities until one is free on this page.
func (c *Controller) newID() id.WidgetID {
	for {
		wid := c.ids.Generate()
		if c.registry.IsKnown(wid) {
			continue
		}
		if _, taken := c.doc.Container(wid); taken {
			continue
		}
		return wid
	}
}

func (c *Controller) render(wid id.WidgetID) {
	if c.closed {
		return
	}

	fragments := sandbox.Fragments{
		HTML: c.editor.ReadField(wid, browser.FieldHTML),
		CSS:  c.editor.ReadField(wid, browser.FieldCSS),
		JS:   c.editor.ReadField(wid, browser.FieldJS),
	}
	document := c.runner.Render(wid, fragments, c.onLoad)
	c.doc.SetSurfaceDocument(wid, document)
	c.metrics.IncRenders()

	var generation uint64
	if s, ok := c.runner.Surface(wid); ok {
		generation = s.Generation()
	}
	c.emit(Event{Type: EventRendered, Widget: wid, Generation: generation})
}

// onLoad runs on the loop once a surface finished loading its newest document.
func (c *Controller) onLoad(wid id.WidgetID, result *sandbox.Result) {
	failed := c.registry.HasFailedOutcome(wid)
	c.doc.SetIndicator(wid, failed)
	c.metrics.RecordLoad(failed, result.Duration)

	if failed {
		c.logger.Debug("widget script did not complete",
			zap.String("widget", wid.String()),
			zap.Int("syntax_errors", result.SyntaxErrors()),
			zap.Bool("interrupted", result.Interrupted))
	}
	c.emit(Event{Type: EventLoaded, Widget: wid, Failed: failed, Generation: result.Generation})
}

// onConsole runs on the loop for every forwarded line.
func (c *Controller) onConsole(e sandbox.Entry) {
	c.doc.AppendConsoleLine(e.Widget, e.Line)
	c.metrics.RecordConsoleLine(string(e.Category))
	c.emit(Event{Type: EventConsole, Widget: e.Widget, Category: e.Category, Line: e.Line})
}

func (c *Controller) emit(e Event) {
	if c.observer == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	c.observer(e)
}
