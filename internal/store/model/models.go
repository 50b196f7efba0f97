package model

import (
	"time"

	"gorm.io/datatypes"

	"conductor/internal/market"
)

// PositionModel maps the positions table.
type PositionModel struct {
	ID             string     `gorm:"column:id;primaryKey"`
	SymbolName     string     `gorm:"column:symbol_name;not null;index"`
	SymbolExchange string     `gorm:"column:symbol_exchange;not null"`
	Status         string     `gorm:"column:status;not null;index"`
	Side           string     `gorm:"column:side;not null"`
	OpenDate       time.Time  `gorm:"column:open_date;not null"`
	CloseDate      *time.Time `gorm:"column:close_date"`
	OpenPrice      float64    `gorm:"column:open_price;not null"`
	ClosePrice     *float64   `gorm:"column:close_price"`
	Quantity       float64    `gorm:"column:quantity;not null"`
	PL             *float64   `gorm:"column:pl"`
}

func (PositionModel) TableName() string { return "positions" }

// OrderEventModel maps the order_events journal.
type OrderEventModel struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string         `gorm:"column:name;not null"`
	PositionID string         `gorm:"column:position_id;index"`
	Symbol     string         `gorm:"column:symbol"`
	Payload    datatypes.JSON `gorm:"column:payload"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (OrderEventModel) TableName() string { return "order_events" }

// FromPosition builds a row. A zero close price or pl is stored as NULL, and a
// missing open date falls back to now because the column is required.
func FromPosition(p market.Position) PositionModel {
	row := PositionModel{
		ID:             p.ID,
		SymbolName:     p.Symbol.Name,
		SymbolExchange: string(p.Symbol.Exchange),
		Status:         string(p.Status),
		Side:           string(p.Side),
		OpenPrice:      p.OpenPrice,
		Quantity:       p.Quantity,
		CloseDate:      p.CloseDate,
	}
	if row.Status == "" {
		row.Status = string(market.StatusOpen)
	}
	if p.OpenDate != nil {
		row.OpenDate = *p.OpenDate
	} else {
		row.OpenDate = time.Now().UTC()
	}
	if p.ClosePrice != 0 {
		v := p.ClosePrice
		row.ClosePrice = &v
	}
	if p.PL != 0 {
		v := p.PL
		row.PL = &v
	}
	return row
}

// Record exposes the row as a loose record for market.PositionFromRecord.
func (m PositionModel) Record() map[string]any {
	rec := map[string]any{
		"id":              m.ID,
		"symbol_name":     m.SymbolName,
		"symbol_exchange": m.SymbolExchange,
		"status":          m.Status,
		"side":            m.Side,
		"open_price":      m.OpenPrice,
		"quantity":        m.Quantity,
	}
	if !m.OpenDate.IsZero() {
		rec["open_date"] = m.OpenDate
	}
	if m.CloseDate != nil {
		rec["close_date"] = *m.CloseDate
	}
	if m.ClosePrice != nil {
		rec["close_price"] = *m.ClosePrice
	}
	if m.PL != nil {
		rec["pl"] = *m.PL
	}
	return rec
}

// ToPosition validates the row through the shared record constructor.
func (m PositionModel) ToPosition() (market.Position, error) {
	return market.PositionFromRecord(m.Record())
}
