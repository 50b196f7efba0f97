// Package exchange defines the capabilities a trading venue exposes to the
// orchestrator and the position reconciler, so live and simulated backends
// can be swapped without touching either.
package exchange

import (
	"errors"
	"time"

	"conductor/internal/market"
)

// Quote is a raw top-of-book update as delivered by the venue.
type Quote struct {
	Symbol    string
	Exchange  market.Exchange
	AskPrice  float64
	AskSize   float64
	BidPrice  float64
	BidSize   float64
	Timestamp time.Time
}

// Tick converts the quote into a domain tick for the given exchange.
func (q Quote) Tick() market.Tick {
	return market.NewTick(
		market.Symbol{Name: q.Symbol, Exchange: q.Exchange},
		q.AskPrice, q.AskSize, q.BidPrice, q.BidSize, q.Timestamp,
	)
}

// Fill is what the venue reports after accepting an order.
type Fill struct {
	OrderID      string
	FilledQty    float64 // 0 means the requested quantity
	AvgPrice     float64
	UnrealizedPL float64
	FilledAt     time.Time
}

// BrokerPosition is a venue-side open position.
type BrokerPosition struct {
	Symbol        market.Symbol
	Quantity      float64
	Side          market.Side
	AvgEntryPrice float64
	CurrentPrice  float64
	UnrealizedPL  float64

	// Raw data from exchange (for debugging/logging)
	Raw map[string]any
}

// MarkPrice prefers the current price and falls back to the entry price.
func (p BrokerPosition) MarkPrice() float64 {
	if p.CurrentPrice != 0 {
		return p.CurrentPrice
	}
	return p.AvgEntryPrice
}

// ErrDisconnected marks stream errors caused by a dropped connection.
var ErrDisconnected = errors.New("stream disconnected")

// IsDisconnect reports whether err came from a dropped connection.
func IsDisconnect(err error) bool {
	return errors.Is(err, ErrDisconnected)
}
