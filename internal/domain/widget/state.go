package widget

import (
	"fmt"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
)

// State is a read-only view of one widget.
type State struct {
	ID               id.WidgetID       `json:"id"`
	Fragments        sandbox.Fragments `json:"fragments"`
	Outcome          string            `json:"outcome"`
	IndicatorVisible bool              `json:"indicator_visible"`
	Console          []string          `json:"console"`
	Document         string            `json:"document"`
	Generation       uint64            `json:"generation"`
}

// State returns the current view of a widget.
func (c *Controller) State(wid id.WidgetID) (State, error) {
	if !c.registry.IsKnown(wid) {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownWidget, wid)
	}

	st := State{
		ID: wid,
		Fragments: sandbox.Fragments{
			HTML: c.editor.ReadField(wid, browser.FieldHTML),
			CSS:  c.editor.ReadField(wid, browser.FieldCSS),
			JS:   c.editor.ReadField(wid, browser.FieldJS),
		},
		Outcome:          c.registry.Outcome(wid).String(),
		IndicatorVisible: c.doc.IndicatorVisible(wid),
		Console:          c.doc.ConsoleLines(wid),
		Document:         c.doc.SurfaceDocument(wid),
	}
	if st.Console == nil {
		st.Console = []string{}
	}
	if s, ok := c.runner.Surface(wid); ok {
		st.Generation = s.Generation()
	}
	return st, nil
}

// Preview returns a sanitized static copy of the widget's body as its last load left it.
func (c *Controller) Preview(wid id.WidgetID) (string, error) {
	if !c.registry.IsKnown(wid) {
		return "", fmt.Errorf("%w: %s", ErrUnknownWidget, wid)
	}
	s, ok := c.runner.Surface(wid)
	if !ok {
		return "", nil
	}
	result := s.LastResult()
	if result == nil {
		return "", nil
	}
	return sandbox.Preview(result.BodyHTML), nil
}
