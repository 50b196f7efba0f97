package position

import (
	"context"
	"fmt"

	"conductor/internal/eventbus"
	"conductor/internal/store"
)

// AttachJournal records every order-created and order-closed event in j.
// The returned function detaches both subscriptions.
func AttachJournal(bus *eventbus.Bus, j store.EventJournal) func() {
	h := journalHandler(j)
	offCreated := bus.Subscribe(eventbus.OrderCreated, h)
	offClosed := bus.Subscribe(eventbus.OrderClosed, h)
	return func() {
		offCreated()
		offClosed()
	}
}

func journalHandler(j store.EventJournal) eventbus.Handler {
	return func(ctx context.Context, ev eventbus.Event) error {
		if ev.Position == nil {
			return nil
		}
		p := *ev.Position
		if err := j.AppendEvent(ctx, store.OrderEvent{
			Name:       string(ev.Name),
			PositionID: p.ID,
			Symbol:     p.Symbol.String(),
			Payload:    p,
		}); err != nil {
			return fmt.Errorf("journal %s %s: %w", ev.Name, p.ID, err)
		}
		return nil
	}
}
