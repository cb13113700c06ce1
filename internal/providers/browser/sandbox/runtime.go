package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var (
	// ErrTimeout interrupts a load that ran past Config.Timeout.
	ErrTimeout = errors.New("execution timeout exceeded")
	// ErrCancelled interrupts a load superseded by a newer one.
	ErrCancelled = errors.New("load cancelled")
)

// StackOverflowMessage is reported when a guarded script exceeds the call stack limit.
const StackOverflowMessage = "Maximum call stack size exceeded"

// Runtime executes isolated documents. It holds no per-load state: every Load gets a fresh
// goja VM, so nothing a script defines survives into the next render.
type Runtime struct {
	config Config
	logger *logging.Logger
}

// New creates a sandboxed runtime
func New(config Config, logger *logging.Logger) *Runtime {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runtime{config: config, logger: logger}
}

// Config returns the runtime configuration.
func (r *Runtime) Config() Config { return r.config }

// Load parses an isolated document and runs its script blocks in document order. A block that
// fails to compile is skipped; an uncaught exception ends only its own block. Cancelling ctx or
// exceeding the timeout interrupts the running block and skips the rest.
func (r *Runtime) Load(ctx context.Context, document string, host Host) *Result {
	start := time.Now()
	result := &Result{}
	defer func() { result.Duration = time.Since(start) }()

	page, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to parse document: %w", err))
		return result
	}

	var styles []string
	page.Find("style").Each(func(_ int, s *goquery.Selection) {
		styles = append(styles, s.Text())
	})
	result.Style = strings.Join(styles, "\n")

	var scripts []string
	page.Find("script").Each(func(_ int, s *goquery.Selection) {
		// External scripts are never fetched
		if _, external := s.Attr("src"); external {
			return
		}
		scripts = append(scripts, s.Text())
	})

	vm := goja.New()
	if r.config.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}
	r.setupGlobals(vm, host, page)

	stop := r.watch(ctx, vm)
	defer stop()

	logger := r.logger.ForWidget(host.ID().String())
	for i, src := range scripts {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}

		prog, err := goja.Compile(fmt.Sprintf("script-%d.js", i), src, false)
		if err != nil {
			logger.Debug("script failed to compile", zap.Int("script", i), zap.Error(err))
			result.Errors = append(result.Errors, &ScriptError{Script: i, Syntax: true, Err: err})
			continue
		}

		_, err = vm.RunProgram(prog)
		if err != nil {
			result.Errors = append(result.Errors, &ScriptError{Script: i, Err: err})

			var interrupted *goja.InterruptedError
			if errors.As(err, &interrupted) {
				logger.Debug("script interrupted", zap.Int("script", i), zap.Any("reason", interrupted.Value()))
				result.Interrupted = true
				break
			}

			// goja overflows past try/catch/finally; a browser raises a catchable RangeError.
			var overflow *goja.StackOverflowError
			if errors.As(err, &overflow) && isGuarded(src, host.ID()) {
				logger.Debug("stack overflow in guarded script", zap.Int("script", i))
				host.Logger(host.ID()).Emit(CategoryError, FormatLine(CategoryError, []string{
					formatErrorValue("RangeError", StackOverflowMessage),
				}))
				host.Success(host.ID())
				result.Scripts++
				continue
			}
			logger.Debug("uncaught exception", zap.Int("script", i), zap.Error(err))
		}
		result.Scripts++
	}

	if body, err := page.Find("body").Html(); err == nil {
		result.BodyHTML = body
	}
	return result
}

// watch interrupts vm when ctx ends or the timeout fires. The returned func stops watching.
func (r *Runtime) watch(ctx context.Context, vm *goja.Runtime) func() {
	done := make(chan struct{})

	var timeout <-chan time.Time
	var timer *time.Timer
	if r.config.Timeout > 0 {
		timer = time.NewTimer(r.config.Timeout)
		timeout = timer.C
	}

	go func() {
		select {
		case <-timeout:
			vm.Interrupt(ErrTimeout)
		case <-ctx.Done():
			vm.Interrupt(ErrCancelled)
		case <-done:
		}
	}()

	return func() {
		close(done)
		if timer != nil {
			timer.Stop()
		}
	}
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals(vm *goja.Runtime, host Host, page *goquery.Document) {
	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = vm.Set(name, goja.Undefined())
	}

	formatter := newJSFormatter(vm)
	global := vm.GlobalObject()
	_ = vm.Set("window", global)
	_ = vm.Set("self", global)

	// The surface's own console stays inside the surface
	logger := r.logger.ForWidget(host.ID().String())
	_ = vm.Set("console", formatter.console(func(c Category, line string) {
		logger.Debug("surface console", zap.String("category", string(c)), zap.String("line", line))
	}))

	// Setup timers (no-op for security)
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		_ = vm.Set(name, noop)
	}

	bridge := vm.NewObject()
	_ = bridge.Set("logger", func(call goja.FunctionCall) goja.Value {
		fwd := host.Logger(id.WidgetID(call.Argument(0).String()))
		return formatter.console(fwd.Emit)
	})
	_ = bridge.Set("success", func(call goja.FunctionCall) goja.Value {
		host.Success(id.WidgetID(call.Argument(0).String()))
		return goja.Undefined()
	})
	parent := vm.NewObject()
	_ = parent.Set("tinySandbox", bridge)
	_ = global.Set("parent", parent)

	if r.config.EnableDOM {
		_ = vm.Set("document", newDOM(vm, page).Object())
	}
}
