package strategy

import (
	"context"
	"fmt"

	"conductor/internal/analysis/indicator"
	"conductor/internal/connector"
	"conductor/internal/logger"
	"conductor/internal/market"
	"conductor/internal/trading"
)

const (
	SMACrossName = "sma_cross"

	fastName = "sma_fast"
	slowName = "sma_slow"
)

// SMACross buys when the fast SMA crosses above the slow one and closes the
// position when it crosses back below. It holds at most one position.
type SMACross struct {
	params Params

	prevDiff float64
	havePrev bool
	openID   string
}

var _ connector.Strategy = (*SMACross)(nil)

func NewSMACross(p Params) (*SMACross, error) {
	if p.FastPeriod <= 0 {
		p.FastPeriod = 5
	}
	if p.SlowPeriod <= 0 {
		p.SlowPeriod = 20
	}
	if p.FastPeriod >= p.SlowPeriod {
		return nil, fmt.Errorf("sma_cross: fast period %d must be below slow period %d", p.FastPeriod, p.SlowPeriod)
	}
	if p.Quantity <= 0 {
		return nil, &market.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if p.Source == "" {
		p.Source = market.FieldClose
	}
	return &SMACross{params: p}, nil
}

// Init registers both averages; the connector seeds them with history.
func (s *SMACross) Init(_ context.Context, tc *trading.Context) error {
	tc.AddIndicator(indicator.NewSMA(fastName, s.params.FastPeriod, s.params.Source))
	tc.AddIndicator(indicator.NewSMA(slowName, s.params.SlowPeriod, s.params.Source))
	s.havePrev = false
	return nil
}

func (s *SMACross) Run(context.Context, *trading.Context) error { return nil }

func (s *SMACross) OnTick(context.Context, *trading.Context) error { return nil }

func (s *SMACross) OnBar(ctx context.Context, tc *trading.Context) error {
	diff, ok := s.spread(tc)
	if !ok {
		return nil
	}
	prev, had := s.prevDiff, s.havePrev
	s.prevDiff, s.havePrev = diff, true
	if !had {
		return nil
	}
	bar, err := tc.LastBar()
	if err != nil {
		return nil
	}
	switch {
	case prev <= 0 && diff > 0 && s.openID == "":
		return s.enter(ctx, tc, bar.Symbol)
	case prev >= 0 && diff < 0 && s.openID != "":
		return s.exit(ctx, tc)
	}
	return nil
}

func (s *SMACross) spread(tc *trading.Context) (float64, bool) {
	fast, ok := tc.Indicator(fastName)
	if !ok {
		return 0, false
	}
	slow, ok := tc.Indicator(slowName)
	if !ok {
		return 0, false
	}
	f, ok := fast.LastValue()
	if !ok {
		return 0, false
	}
	sl, ok := slow.LastValue()
	if !ok {
		return 0, false
	}
	return f - sl, true
}

func (s *SMACross) enter(ctx context.Context, tc *trading.Context, sym market.Symbol) error {
	if tc.Orders() == nil {
		return nil
	}
	p, err := tc.Orders().Buy(ctx, sym, s.params.Quantity)
	if err != nil {
		return fmt.Errorf("sma_cross buy %s: %w", sym, err)
	}
	s.openID = p.ID
	logger.Infof("sma_cross: cross up on %s, opened %s at %v", sym, p.ID, p.OpenPrice)
	return nil
}

func (s *SMACross) exit(ctx context.Context, tc *trading.Context) error {
	if tc.Orders() == nil {
		return nil
	}
	id := s.openID
	p, err := tc.Orders().Close(ctx, id)
	if err != nil {
		return fmt.Errorf("sma_cross close %s: %w", id, err)
	}
	s.openID = ""
	logger.Infof("sma_cross: cross down, closed %s at %v pl=%v", id, p.ClosePrice, p.PL)
	return nil
}
