// Package memory is an in-process Store used by tests and by backtests that
// run without a database file.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"conductor/internal/market"
	"conductor/internal/store"
)

type Store struct {
	mu        sync.RWMutex
	order     []string
	positions map[string]market.Position
	events    []store.OrderEvent
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{positions: make(map[string]market.Position)}
}

func (s *Store) Init(context.Context) error { return nil }

func (s *Store) GetPosition(_ context.Context, id string) (market.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return market.Position{}, fmt.Errorf("%w: %s", market.ErrPositionNotFound, id)
	}
	return p, nil
}

func (s *Store) GetPositions(context.Context) ([]market.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]market.Position, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.positions[id])
	}
	return out, nil
}

func (s *Store) CreatePosition(_ context.Context, p market.Position) error {
	if strings.TrimSpace(p.ID) == "" {
		return &market.ValidationError{Field: "id"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.positions[p.ID]; exists {
		return fmt.Errorf("position %s already exists", p.ID)
	}
	s.order = append(s.order, p.ID)
	s.positions[p.ID] = p
	return nil
}

func (s *Store) UpdatePosition(_ context.Context, p market.Position) error {
	if strings.TrimSpace(p.ID) == "" {
		return &market.ValidationError{Field: "id"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.positions[p.ID]; !exists {
		return fmt.Errorf("%w: %s", market.ErrPositionNotFound, p.ID)
	}
	s.positions[p.ID] = p
	return nil
}

func (s *Store) AppendEvent(_ context.Context, ev store.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = int64(len(s.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *Store) ListEvents(_ context.Context, positionID string, limit int) ([]store.OrderEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var out []store.OrderEvent
	for _, ev := range s.events {
		if positionID != "" && ev.PositionID != positionID {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
