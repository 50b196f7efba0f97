package binance

import (
	"strings"
	"time"

	"conductor/internal/gateway/exchange"
	"conductor/internal/market"
	"conductor/internal/pkg/convert"

	"github.com/adshao/go-binance/v2/futures"
)

func parseFloat(v string) float64 {
	return convert.ToFloat64(strings.TrimSpace(v))
}

func klineToOHLC(sym market.Symbol, kl *futures.Kline) (market.OHLC, bool) {
	if kl == nil || kl.OpenTime <= 0 {
		return market.OHLC{}, false
	}
	return market.OHLC{
		Symbol:    sym,
		Open:      parseFloat(kl.Open),
		High:      parseFloat(kl.High),
		Low:       parseFloat(kl.Low),
		Close:     parseFloat(kl.Close),
		Volume:    parseFloat(kl.Volume),
		Timestamp: time.UnixMilli(kl.OpenTime).UTC(),
	}, true
}

// convertKlineEvent keeps final klines of subscribed symbols only.
func convertKlineEvent(ev *futures.WsKlineEvent, names map[string]string) (market.OHLC, bool) {
	if ev == nil || !ev.Kline.IsFinal {
		return market.OHLC{}, false
	}
	name, ok := names[strings.ToUpper(strings.TrimSpace(ev.Symbol))]
	if !ok {
		return market.OHLC{}, false
	}
	return market.OHLC{
		Symbol:    market.Symbol{Name: name, Exchange: market.ExchangeBinance},
		Open:      parseFloat(ev.Kline.Open),
		High:      parseFloat(ev.Kline.High),
		Low:       parseFloat(ev.Kline.Low),
		Close:     parseFloat(ev.Kline.Close),
		Volume:    parseFloat(ev.Kline.Volume),
		Timestamp: time.UnixMilli(ev.Kline.StartTime).UTC(),
	}, true
}

func convertBookTicker(ev *futures.WsBookTickerEvent, names map[string]string) (exchange.Quote, bool) {
	if ev == nil {
		return exchange.Quote{}, false
	}
	name, ok := names[strings.ToUpper(strings.TrimSpace(ev.Symbol))]
	if !ok {
		return exchange.Quote{}, false
	}
	ask := parseFloat(ev.BestAskPrice)
	bid := parseFloat(ev.BestBidPrice)
	if ask <= 0 || bid <= 0 {
		return exchange.Quote{}, false
	}
	ts := time.Now().UTC()
	if ev.Time > 0 {
		ts = time.UnixMilli(ev.Time).UTC()
	}
	return exchange.Quote{
		Symbol:    name,
		Exchange:  market.ExchangeBinance,
		AskPrice:  ask,
		AskSize:   parseFloat(ev.BestAskQty),
		BidPrice:  bid,
		BidSize:   parseFloat(ev.BestBidQty),
		Timestamp: ts,
	}, true
}

// positionFromRisk maps a position risk row; flat rows are skipped.
func positionFromRisk(pr *futures.PositionRisk) (exchange.BrokerPosition, bool) {
	if pr == nil {
		return exchange.BrokerPosition{}, false
	}
	amt := parseFloat(pr.PositionAmt)
	if amt == 0 {
		return exchange.BrokerPosition{}, false
	}
	side := market.SideBuy
	if amt < 0 {
		side = market.SideSell
		amt = -amt
	}
	return exchange.BrokerPosition{
		Symbol:        market.Symbol{Name: strings.ToUpper(pr.Symbol), Exchange: market.ExchangeBinance},
		Quantity:      amt,
		Side:          side,
		AvgEntryPrice: parseFloat(pr.EntryPrice),
		CurrentPrice:  parseFloat(pr.MarkPrice),
		UnrealizedPL:  parseFloat(pr.UnRealizedProfit),
		Raw: map[string]any{
			"symbol":        pr.Symbol,
			"positionAmt":   pr.PositionAmt,
			"entryPrice":    pr.EntryPrice,
			"markPrice":     pr.MarkPrice,
			"unrealizedPnl": pr.UnRealizedProfit,
			"positionSide":  pr.PositionSide,
		},
	}, true
}

// fillFromOrder derives the average price from cumulative quote volume.
func fillFromOrder(res *futures.CreateOrderResponse, requested float64) exchange.Fill {
	if res == nil {
		return exchange.Fill{}
	}
	qty := parseFloat(res.ExecutedQuantity)
	if qty <= 0 {
		qty = requested
	}
	var avg float64
	if cum := parseFloat(res.CumQuote); cum > 0 && qty > 0 {
		avg = cum / qty
	}
	if avg == 0 {
		avg = parseFloat(res.Price)
	}
	filled := time.Now().UTC()
	if res.UpdateTime > 0 {
		filled = time.UnixMilli(res.UpdateTime).UTC()
	}
	return exchange.Fill{
		OrderID:   convert.ToString(res.OrderID),
		FilledQty: qty,
		AvgPrice:  avg,
		FilledAt:  filled,
	}
}
