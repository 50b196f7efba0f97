package eventbus

import (
	"context"
	"fmt"
	"sync"

	"conductor/internal/logger"
	"conductor/internal/market"
	"conductor/internal/trading"

	"go.uber.org/multierr"
)

// Name identifies an event on the bus.
type Name string

const (
	Authenticated Name = "authenticated"
	Tick          Name = "tick"
	Bar           Name = "bar"
	HistoricalBar Name = "historical-bar"
	OrderCreated  Name = "order-created"
	OrderClosed   Name = "order-closed"
	Disconnected  Name = "disconnected"
	Error         Name = "error"
)

// Event carries the run context or the affected position.
type Event struct {
	Name     Name
	Context  *trading.Context
	Position *market.Position
	Err      error
}

// Handler runs synchronously inside Publish.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches events to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Name][]subscription
}

func New() *Bus {
	return &Bus{subs: make(map[Name][]subscription)}
}

// Subscribe appends h to the listeners of name and returns a function that
// removes it.
func (b *Bus) Subscribe(name Name, h Handler) func() {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: h})
	b.mu.Unlock()
	return func() { b.unsubscribe(name, id) }
}

func (b *Bus) unsubscribe(name Name, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[name]
	for i, s := range list {
		if s.id == id {
			b.subs[name] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish calls every listener of ev.Name in order. A failing or panicking
// listener does not stop the others; their errors are combined.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	list := append([]subscription(nil), b.subs[ev.Name]...)
	b.mu.RUnlock()

	var errs error
	for _, s := range list {
		errs = multierr.Append(errs, safeCall(ctx, s.handler, ev))
	}
	if errs != nil {
		logger.Warnf("eventbus: %s listeners failed: %v", ev.Name, errs)
	}
	return errs
}

// Listeners reports how many handlers are attached to name.
func (b *Bus) Listeners(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

func safeCall(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s listener panic: %v", ev.Name, r)
		}
	}()
	return h(ctx, ev)
}
