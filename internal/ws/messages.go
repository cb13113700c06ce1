package ws

import (
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/widget"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
)

// Client message types.
const (
	TypeInput = "input"
	TypeRun   = "run"
	TypeScan  = "scan"
	TypePing  = "ping"
)

// Server message types.
const (
	TypeConnected = "connected"
	TypeEvent     = "event"
	TypeAck       = "ack"
	TypeScanned   = "scanned"
	TypePong      = "pong"
	TypeError     = "error"
)

// ClientMessage is a frame sent by the editor.
type ClientMessage struct {
	Type   string      `json:"type"`
	Widget id.WidgetID `json:"widget,omitempty"`
	Field  string      `json:"field,omitempty"`
	Value  string      `json:"value,omitempty"`
}

// ServerMessage is a frame pushed to the editor.
type ServerMessage struct {
	Type      string        `json:"type"`
	Page      id.PageID     `json:"page,omitempty"`
	Request   string        `json:"request,omitempty"`
	Widget    id.WidgetID   `json:"widget,omitempty"`
	Widgets   []id.WidgetID `json:"widgets,omitempty"`
	Event     *widget.Event `json:"event,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

func newMessage(typ string) ServerMessage {
	return ServerMessage{Type: typ, Timestamp: time.Now().UnixMilli()}
}
