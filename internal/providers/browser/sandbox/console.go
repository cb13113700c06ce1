package sandbox

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
)

// Unserializable replaces a value that could not be rendered at all.
const Unserializable = "[unserializable]"

// Forwarder mirrors console calls made for one widget into that widget's output panel.
// It never panics.
type Forwarder struct {
	widget id.WidgetID
	emit   func(Entry)
}

// NewForwarder creates a forwarder delivering entries to emit. A nil emit drops everything.
func NewForwarder(wid id.WidgetID, emit func(Entry)) *Forwarder {
	return &Forwarder{widget: wid, emit: emit}
}

// ID returns the widget the forwarder writes for.
func (f *Forwarder) ID() id.WidgetID { return f.widget }

// Forward renders Go values as one console line.
func (f *Forwarder) Forward(category Category, args ...any) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = FormatValue(arg)
	}
	f.Emit(category, FormatLine(category, parts))
}

// Emit delivers an already formatted line.
func (f *Forwarder) Emit(category Category, line string) {
	if f == nil || f.emit == nil {
		return
	}
	f.emit(Entry{Widget: f.widget, Category: category, Line: line, Time: time.Now()})
}

// FormatLine renders "[category] arg1, arg2, ...".
func FormatLine(category Category, args []string) string {
	return "[" + string(category) + "] " + strings.Join(args, ", ")
}

// FormatValue renders a Go value. Primitives use default string conversion and structured
// values are JSON encoded. Encoding failures fall back to %v.
func FormatValue(v any) (out string) {
	defer func() {
		if recover() != nil {
			out = Unserializable
		}
	}()

	if v == nil {
		return "null"
	}
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.String:
		return fmt.Sprint(v)
	}

	encoded, err := sonic.ConfigStd.MarshalToString(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return encoded
}

// jsFormatter renders JS values with the JSON.stringify captured before user code runs, so
// scripts replacing JSON cannot change how their output is forwarded.
type jsFormatter struct {
	vm        *goja.Runtime
	stringify goja.Callable
	jsonObj   goja.Value
}

func newJSFormatter(vm *goja.Runtime) *jsFormatter {
	f := &jsFormatter{vm: vm}
	if obj := vm.Get("JSON"); obj != nil {
		f.jsonObj = obj
		if fn, ok := goja.AssertFunction(obj.ToObject(vm).Get("stringify")); ok {
			f.stringify = fn
		}
	}
	return f
}

// console builds a console object with one method per category, each handing its formatted
// line to emit.
func (f *jsFormatter) console(emit func(Category, string)) *goja.Object {
	obj := f.vm.NewObject()
	for _, c := range Categories {
		_ = obj.Set(string(c), func(call goja.FunctionCall) goja.Value {
			emit(c, FormatLine(c, f.formatArgs(call.Arguments)))
			return goja.Undefined()
		})
	}
	return obj
}

func (f *jsFormatter) formatArgs(args []goja.Value) []string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = f.format(arg)
	}
	return parts
}

func (f *jsFormatter) format(v goja.Value) (out string) {
	defer func() {
		if recover() != nil {
			out = Unserializable
		}
	}()

	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if obj.ClassName() == "Error" {
		return f.formatError(obj)
	}
	if f.stringify != nil {
		if s, err := f.stringify(f.jsonObj, obj); err == nil && s != nil && !goja.IsUndefined(s) {
			return s.String()
		}
	}
	return f.fallback(obj)
}

// formatError keeps name and message, which JSON.stringify would drop.
func (f *jsFormatter) formatError(obj *goja.Object) string {
	return formatErrorValue(f.property(obj, "name"), f.property(obj, "message"))
}

func formatErrorValue(name, message string) string {
	errJSON := struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}{Name: name, Message: message}
	encoded, err := sonic.ConfigStd.MarshalToString(errJSON)
	if err != nil {
		return name + ": " + message
	}
	return encoded
}

func (f *jsFormatter) property(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return f.fallback(v)
}

// fallback uses the value's own string conversion, which may run user code and throw.
func (f *jsFormatter) fallback(v goja.Value) (out string) {
	defer func() {
		if recover() != nil {
			out = Unserializable
		}
	}()
	return v.String()
}
