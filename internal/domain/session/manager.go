package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/widget"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/eventloop"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"go.uber.org/zap"
)

var (
	ErrPageNotFound = errors.New("page not found")
	ErrInvalidPage  = errors.New("invalid page")
	ErrClosed       = errors.New("session manager closed")
)

// Options configures a Manager. Zero values select defaults.
type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	MaxPageBytes    int

	Sandbox         *sandbox.Config // nil selects sandbox.DefaultConfig
	Debounce        time.Duration
	WidgetIDs       id.WidgetIDConfig
	SyntaxErrorText string

	Metrics *monitoring.Metrics
	Logger  *logging.Logger
}

// Manager handles host page sessions
type Manager struct {
	pages   sync.Map // id.PageID -> *Page
	opts    Options
	runtime *sandbox.Runtime
	ids     *id.WidgetIDGenerator
	metrics *monitoring.Metrics
	logger  *logging.Logger

	mu          sync.RWMutex
	lastCleanup *time.Time
	closed      bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewManager creates a new session manager
func NewManager(opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 5 * time.Minute
	}
	if opts.MaxPageBytes <= 0 {
		opts.MaxPageBytes = browser.MaxHTMLSize
	}
	runtimeConfig := sandbox.DefaultConfig()
	if opts.Sandbox != nil {
		runtimeConfig = *opts.Sandbox
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	return &Manager{
		opts:    opts,
		runtime: sandbox.New(runtimeConfig, opts.Logger.Named("sandbox")),
		ids:     id.NewWidgetIDGenerator(opts.WidgetIDs),
		metrics: opts.Metrics,
		logger:  opts.Logger.Named("session"),
		stop:    make(chan struct{}),
	}
}

// Start runs the expiry loop until Close.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.opts.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := m.Cleanup(); n > 0 {
					m.logger.Info("expired idle pages", zap.Int("count", n))
				}
			case <-m.stop:
				return
			}
		}
	}()
}

// Create parses a host page, starts its loop and initializes its widgets.
func (m *Manager) Create(ctx context.Context, html []byte, source string) (*Page, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	if err := browser.ValidateHTML(html, m.opts.MaxPageBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}
	doc, err := browser.LoadHTML(html, browser.WithSyntaxErrorText(m.opts.SyntaxErrorText))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}

	pid := id.NewPageID()
	logger := m.opts.Logger.ForPage(pid.String())
	loop := eventloop.New(logger.Named("loop"))
	loop.Start()

	page := &Page{
		ID:        pid,
		Source:    source,
		CreatedAt: time.Now(),
		loop:      loop,
		doc:       doc,
		subs:      make(map[chan widget.Event]struct{}),
	}
	page.touch()
	page.controller = widget.New(doc, loop.Dispatch, widget.Options{
		Debounce:  m.opts.Debounce,
		Generator: m.ids,
		Runtime:   m.runtime,
		Observer:  page.publish,
		Metrics:   m.metrics,
		Logger:    logger,
	})

	var widgets []id.WidgetID
	if err := page.Do(ctx, func(c *widget.Controller) { widgets = c.Scan() }); err != nil {
		page.close()
		return nil, fmt.Errorf("failed to initialize page: %w", err)
	}

	m.pages.Store(pid, page)
	m.metrics.IncPagesTotal()
	m.metrics.SetPagesActive(m.Count())
	m.logger.Info("page created",
		zap.String("page", pid.String()),
		zap.String("source", source),
		zap.Int("widgets", len(widgets)))
	return page, nil
}

// Get returns a live page.
func (m *Manager) Get(pid id.PageID) (*Page, error) {
	v, ok := m.pages.Load(pid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, pid)
	}
	return v.(*Page), nil
}

// List returns live pages, oldest first.
func (m *Manager) List() []*Page {
	var pages []*Page
	m.pages.Range(func(_, v any) bool {
		pages = append(pages, v.(*Page))
		return true
	})
	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })
	return pages
}

// Count returns the number of live pages.
func (m *Manager) Count() int {
	n := 0
	m.pages.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Delete closes a page.
func (m *Manager) Delete(pid id.PageID) error {
	v, ok := m.pages.LoadAndDelete(pid)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPageNotFound, pid)
	}
	v.(*Page).close()
	m.metrics.SetPagesActive(m.Count())
	m.logger.Info("page deleted", zap.String("page", pid.String()))
	return nil
}

// Cleanup closes pages idle for longer than the TTL and returns how many it closed.
func (m *Manager) Cleanup() int {
	now := time.Now()
	cutoff := now.Add(-m.opts.TTL)

	expired := 0
	m.pages.Range(func(k, v any) bool {
		page := v.(*Page)
		if page.LastAccess().Before(cutoff) {
			if _, ok := m.pages.LoadAndDelete(k); ok {
				page.close()
				expired++
			}
		}
		return true
	})

	m.mu.Lock()
	m.lastCleanup = &now
	m.mu.Unlock()

	if expired > 0 {
		m.metrics.SetPagesActive(m.Count())
	}
	return expired
}

// LastCleanup returns when expiry last ran, or nil.
func (m *Manager) LastCleanup() *time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCleanup
}

// Close stops the expiry loop and closes every page.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()

	m.pages.Range(func(k, v any) bool {
		m.pages.Delete(k)
		v.(*Page).close()
		return true
	})
	m.metrics.SetPagesActive(0)
}
