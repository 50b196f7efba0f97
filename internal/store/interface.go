package store

import (
	"context"
	"time"

	"conductor/internal/market"
)

// PositionStore persists positions. Rows are inserted once and updated after
// that; nothing is ever deleted. There are no multi-row transactions.
type PositionStore interface {
	Init(ctx context.Context) error
	// GetPosition fails with market.ErrPositionNotFound for unknown ids.
	GetPosition(ctx context.Context, id string) (market.Position, error)
	GetPositions(ctx context.Context) ([]market.Position, error)
	// CreatePosition fails when p.ID is empty.
	CreatePosition(ctx context.Context, p market.Position) error
	UpdatePosition(ctx context.Context, p market.Position) error
}

// OrderEvent is one journal entry for an order lifecycle event.
type OrderEvent struct {
	ID         int64
	Name       string
	PositionID string
	Symbol     string
	Payload    market.Position
	CreatedAt  time.Time
}

// EventJournal appends order lifecycle events.
type EventJournal interface {
	AppendEvent(ctx context.Context, ev OrderEvent) error
	ListEvents(ctx context.Context, positionID string, limit int) ([]OrderEvent, error)
}

// Store is the full persistence surface used by the app.
type Store interface {
	PositionStore
	EventJournal
	Close() error
}
