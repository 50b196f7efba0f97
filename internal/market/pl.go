package market

import "github.com/shopspring/decimal"

// CalculatePL returns quantity*(close-open) for buys and quantity*(open-close)
// for sells.
func CalculatePL(side Side, quantity, openPrice, closePrice float64) float64 {
	qty := decimal.NewFromFloat(quantity)
	open := decimal.NewFromFloat(openPrice)
	closeP := decimal.NewFromFloat(closePrice)
	var diff decimal.Decimal
	if side == SideSell {
		diff = open.Sub(closeP)
	} else {
		diff = closeP.Sub(open)
	}
	return qty.Mul(diff).InexactFloat64()
}

// PositionPL applies CalculatePL to a position's current prices.
func PositionPL(p Position) float64 {
	return CalculatePL(p.Side, p.Quantity, p.OpenPrice, p.ClosePrice)
}
