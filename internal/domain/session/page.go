package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/widget"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/eventloop"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
)

// DefaultSubscriberBuffer is the event backlog a subscriber may fall behind by before events
// are dropped for it.
const DefaultSubscriberBuffer = 64

// Page is one live host page.
type Page struct {
	ID        id.PageID
	Source    string
	CreatedAt time.Time

	loop       *eventloop.Loop
	doc        *browser.Document
	controller *widget.Controller
	lastAccess atomic.Int64

	subsMu  sync.Mutex
	subs    map[chan widget.Event]struct{}
	dropped int
	closed  bool
}

// Info summarizes a page for listings.
type Info struct {
	ID         id.PageID     `json:"id"`
	Source     string        `json:"source"`
	CreatedAt  time.Time     `json:"created_at"`
	LastAccess time.Time     `json:"last_access"`
	Widgets    []id.WidgetID `json:"widgets"`
}

// Do runs fn with the page's controller on the page loop and waits for it.
func (p *Page) Do(ctx context.Context, fn func(*widget.Controller)) error {
	p.touch()
	if err := p.loop.Do(ctx, func() { fn(p.controller) }); err != nil {
		return fmt.Errorf("page %s: %w", p.ID, err)
	}
	return nil
}

// HTML renders the host document in its current state.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var out string
	var renderErr error
	err := p.Do(ctx, func(*widget.Controller) {
		out, renderErr = p.doc.HTML()
	})
	if err != nil {
		return "", err
	}
	if renderErr != nil {
		return "", fmt.Errorf("failed to render page %s: %w", p.ID, renderErr)
	}
	return out, nil
}

// Info returns the page summary.
func (p *Page) Info(ctx context.Context) (Info, error) {
	info := Info{ID: p.ID, Source: p.Source, CreatedAt: p.CreatedAt}
	err := p.Do(ctx, func(c *widget.Controller) {
		info.Widgets = c.Widgets()
	})
	info.LastAccess = p.LastAccess()
	return info, err
}

// LastAccess returns when the page was last driven.
func (p *Page) LastAccess() time.Time {
	return time.Unix(0, p.lastAccess.Load())
}

// Subscribe returns a channel of widget events and a func that ends the subscription. The
// channel is closed when the subscription ends or the page closes. Events are dropped for
// subscribers whose buffer is full.
func (p *Page) Subscribe(buffer int) (<-chan widget.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan widget.Event, buffer)

	p.subsMu.Lock()
	if p.closed {
		p.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	p.subs[ch] = struct{}{}
	p.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subsMu.Lock()
			defer p.subsMu.Unlock()
			if _, ok := p.subs[ch]; ok {
				delete(p.subs, ch)
				close(ch)
			}
		})
	}
}

// Dropped counts events not delivered to slow subscribers.
func (p *Page) Dropped() int {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	return p.dropped
}

// publish is the controller observer. It runs on the loop and never blocks.
func (p *Page) publish(e widget.Event) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for ch := range p.subs {
		select {
		case ch <- e:
		default:
			p.dropped++
		}
	}
}

func (p *Page) touch() {
	p.lastAccess.Store(time.Now().UnixNano())
}

// close stops the controller and the loop and ends every subscription.
func (p *Page) close() {
	_ = p.loop.Do(context.Background(), p.controller.Close)
	p.loop.Close()

	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	p.closed = true
	for ch := range p.subs {
		close(ch)
	}
	p.subs = map[chan widget.Event]struct{}{}
}
