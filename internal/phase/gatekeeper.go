package phase

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncctl/internal/shared"
)

// Store persists client state. [repositories.ClientStateRepository] satisfies it.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Change describes a phase selection. Redirected is set when the previous route was not allowed in the new phase.
type Change struct {
	From       Phase
	To         Phase
	Route      string
	Redirected bool
}

// Gatekeeper owns the active phase and the current route.
type Gatekeeper struct {
	store  Store
	logger *log.Logger

	mu          sync.RWMutex
	current     Phase
	route       string
	subscribers map[chan Change]struct{}
	closeOnce   sync.Once
	closed      bool
}

// NewGatekeeper restores the stored phase, falling back to planning when nothing valid is stored, and starts on the
// phase's default route.
func NewGatekeeper(store Store, logger *log.Logger) *Gatekeeper {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	g := &Gatekeeper{
		store:       store,
		logger:      shared.WithLogger(logger, "component", "phase"),
		current:     Planning,
		subscribers: make(map[chan Change]struct{}),
	}
	g.current = g.restore()
	g.route = DefaultRoute(g.current)
	return g
}

func (g *Gatekeeper) restore() Phase {
	if g.store == nil {
		return Planning
	}
	raw, err := g.store.Get(StateKey)
	if err != nil {
		if !errors.Is(err, shared.ErrClientStateUnset) {
			g.logger.Warn("failed to read stored phase", "err", err)
		}
		return Planning
	}
	p, err := Parse(raw)
	if err != nil {
		g.logger.Warn("ignoring stored phase", "value", raw, "err", err)
		return Planning
	}
	return p
}

// Current returns the active phase.
func (g *Gatekeeper) Current() Phase {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Route returns the current route.
func (g *Gatekeeper) Route() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.route
}

// Allowed returns the routes shown in the active phase.
func (g *Gatekeeper) Allowed() []Route {
	return AllowedRoutes(g.Current())
}

// Select makes p the active phase, persists it, broadcasts the change and moves to the default route when the current
// one is not allowed. The transition always happens; a persistence failure is logged and returned.
func (g *Gatekeeper) Select(p Phase) (Change, error) {
	p, err := Parse(string(p))
	if err != nil {
		return Change{}, err
	}

	g.mu.Lock()
	change := Change{From: g.current, To: p, Route: g.route}
	g.current = p
	if !RouteAllowed(g.route, p) {
		g.route = DefaultRoute(p)
		change.Route = g.route
		change.Redirected = true
	}
	g.mu.Unlock()

	if g.store != nil {
		if err = g.store.Set(StateKey, string(p)); err != nil {
			g.logger.Warn("failed to persist phase", "phase", p, "err", err)
			err = fmt.Errorf("phase %s selected but not saved: %w", p, err)
		}
	}

	g.broadcast(change)
	return change, err
}

// Navigate moves to path if it is allowed in the active phase.
func (g *Gatekeeper) Navigate(path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := LookupRoute(path); !ok {
		return fmt.Errorf("%w: unknown route %q", shared.ErrInvalidArgument, path)
	}
	if !RouteAllowed(path, g.current) {
		return fmt.Errorf("%w: %s in %s", shared.ErrRouteNotAllowed, path, g.current)
	}
	g.route = path
	return nil
}

// Subscribe returns a channel holding the latest phase change. Changes are coalesced: a subscriber that has not read
// yet finds only the newest one, never a stale one.
func (g *Gatekeeper) Subscribe() <-chan Change {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch := make(chan Change, 1)
	if g.closed {
		close(ch)
		return ch
	}
	g.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a channel returned by [Gatekeeper.Subscribe].
func (g *Gatekeeper) Unsubscribe(ch <-chan Change) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for sub := range g.subscribers {
		if sub == ch {
			delete(g.subscribers, sub)
			close(sub)
			return
		}
	}
}

// Close closes every subscriber channel.
func (g *Gatekeeper) Close() {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.closed = true
		for sub := range g.subscribers {
			close(sub)
		}
		g.subscribers = make(map[chan Change]struct{})
	})
}

func (g *Gatekeeper) broadcast(c Change) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for sub := range g.subscribers {
		select {
		case <-sub:
			g.logger.Debug("phase subscriber behind, replacing unread change", "to", c.To)
		default:
		}
		sub <- c
	}
}
