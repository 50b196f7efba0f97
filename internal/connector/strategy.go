package connector

import (
	"context"

	"conductor/internal/eventbus"
	"conductor/internal/trading"
)

// Strategy receives the run context on every event. Callbacks run one at a
// time on the orchestrator's loop.
type Strategy interface {
	Init(ctx context.Context, tc *trading.Context) error
	Run(ctx context.Context, tc *trading.Context) error
	OnTick(ctx context.Context, tc *trading.Context) error
	OnBar(ctx context.Context, tc *trading.Context) error
}

// BindStrategy subscribes s to bus: authenticated calls Init, tick calls Run
// then OnTick, bar calls Run then OnBar. The returned function unbinds it.
func BindStrategy(bus *eventbus.Bus, s Strategy) func() {
	offs := []func(){
		bus.Subscribe(eventbus.Authenticated, func(ctx context.Context, ev eventbus.Event) error {
			return s.Init(ctx, ev.Context)
		}),
		bus.Subscribe(eventbus.Tick, func(ctx context.Context, ev eventbus.Event) error {
			if err := s.Run(ctx, ev.Context); err != nil {
				return err
			}
			return s.OnTick(ctx, ev.Context)
		}),
		bus.Subscribe(eventbus.Bar, func(ctx context.Context, ev eventbus.Event) error {
			if err := s.Run(ctx, ev.Context); err != nil {
				return err
			}
			return s.OnBar(ctx, ev.Context)
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}
