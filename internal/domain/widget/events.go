package widget

import (
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
)

// EventType names a widget lifecycle event.
type EventType string

const (
	EventInitialized EventType = "initialized"
	EventRendered    EventType = "rendered"
	EventConsole     EventType = "console"
	EventLoaded      EventType = "loaded"
)

// Event reports one step of a widget's lifecycle.
type Event struct {
	Type       EventType        `json:"type"`
	Widget     id.WidgetID      `json:"widget"`
	Generation uint64           `json:"generation,omitempty"`
	Category   sandbox.Category `json:"category,omitempty"`
	Line       string           `json:"line,omitempty"`
	Failed     bool             `json:"failed,omitempty"` // Loaded: indicator shown
	Time       time.Time        `json:"time"`
}

// Observer receives events on the page loop. It must not block.
type Observer func(Event)
