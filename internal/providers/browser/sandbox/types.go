package sandbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
)

// Config defines sandbox configuration
type Config struct {
	Timeout         time.Duration // Per-load script timeout, zero for none
	MaxCallStack    int           // Maximum JS call stack depth
	MaxConsoleLines int           // Lines one load may forward, zero for no limit
	EnableDOM       bool          // Expose a document object to scripts
}

// DefaultConfig returns the configuration used when none is supplied.
// Scripts run without a timeout: a hung script leaves the indicator visible.
func DefaultConfig() Config {
	return Config{
		Timeout:         0,
		MaxCallStack:    1024,
		MaxConsoleLines: DefaultMaxConsoleLines,
		EnableDOM:       true,
	}
}

// DefaultMaxConsoleLines caps the console output of a single load.
const DefaultMaxConsoleLines = 1000

// TruncatedMessage replaces console output past the per-load cap.
const TruncatedMessage = "console output truncated"

// Fragments are the three source texts of one widget, read fresh for every render.
type Fragments struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}

// Category is a console forwarding channel.
type Category string

const (
	CategoryLog   Category = "log"
	CategoryWarn  Category = "warn"
	CategoryError Category = "error"
	CategoryInfo  Category = "info"
	CategoryDebug Category = "debug"
)

// Categories lists every forwarding channel. Console objects expose exactly these methods.
var Categories = []Category{CategoryLog, CategoryWarn, CategoryError, CategoryInfo, CategoryDebug}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == strings.ToLower(s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown console category %q", s)
}

// Entry is one forwarded console line.
type Entry struct {
	Widget   id.WidgetID `json:"widget"`
	Category Category    `json:"category"`
	Line     string      `json:"line"`
	Time     time.Time   `json:"time"`
}

// Result describes one load of an isolated document.
type Result struct {
	Generation  uint64        // Load counter of the surface that produced it
	Scripts     int           // Script blocks that compiled and ran
	Errors      []error       // Compile and uncaught runtime errors, in order
	Interrupted bool          // Stopped by timeout or a newer load
	Style       string        // Concatenated style blocks
	BodyHTML    string        // Body after scripts ran
	Duration    time.Duration // Execution time
}

// SyntaxErrors counts the script blocks that failed to compile.
func (r *Result) SyntaxErrors() int {
	n := 0
	for _, err := range r.Errors {
		if se, ok := err.(*ScriptError); ok && se.Syntax {
			n++
		}
	}
	return n
}

// ScriptError wraps a failure of one script block.
type ScriptError struct {
	Script int  // Index of the script block
	Syntax bool // Failed to compile
	Err    error
}

func (e *ScriptError) Error() string {
	kind := "runtime"
	if e.Syntax {
		kind = "syntax"
	}
	return fmt.Sprintf("script %d: %s error: %v", e.Script, kind, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// Host is what an isolated document reaches through window.parent.tinySandbox.
type Host interface {
	// ID names the widget that owns the surface.
	ID() id.WidgetID
	// Logger returns the forwarder for a widget identity.
	Logger(wid id.WidgetID) *Forwarder
	// Success signals that the widget's script finished running.
	Success(wid id.WidgetID)
}
