package resilience

import (
	"sort"
	"sync"
)

// DefaultMaxBreakers bounds how many upstreams a Group tracks at once.
const DefaultMaxBreakers = 1024

// Group hands out one breaker per upstream key, so one failing host cannot block calls to
// the others. Breakers share the group's settings.
type Group struct {
	prefix   string
	settings Settings
	max      int

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates a group whose breakers are named prefix + ":" + key. max <= 0 selects
// DefaultMaxBreakers.
func NewGroup(prefix string, settings Settings, max int) *Group {
	if max <= 0 {
		max = DefaultMaxBreakers
	}
	return &Group{
		prefix:   prefix,
		settings: settings,
		max:      max,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it on first use. When the group is full, closed
// breakers are forgotten first; open and half-open ones are kept.
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.breakers[key]; ok {
		return b
	}
	if len(g.breakers) >= g.max {
		for k, b := range g.breakers {
			if b.State() == StateClosed {
				delete(g.breakers, k)
			}
		}
	}

	b := New(g.prefix+":"+key, g.settings)
	g.breakers[key] = b
	return b
}

// Len returns the number of tracked upstreams.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.breakers)
}

// States reports the state of every tracked upstream.
func (g *Group) States() map[string]State {
	g.mu.Lock()
	defer g.mu.Unlock()

	states := make(map[string]State, len(g.breakers))
	for k, b := range g.breakers {
		states[k] = b.State()
	}
	return states
}

// Open lists the upstreams currently refusing calls, sorted.
func (g *Group) Open() []string {
	var open []string
	for k, s := range g.States() {
		if s == StateOpen {
			open = append(open, k)
		}
	}
	sort.Strings(open)
	return open
}
