package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"conductor/internal/gateway/exchange"
	"conductor/internal/logger"
	"conductor/internal/market"
	symbolpkg "conductor/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

// CreateOrder sends a market order and waits for the RESULT response so the
// fill is known. Venue refusals are returned as rejections.
func (c *Client) CreateOrder(ctx context.Context, order market.Order) (exchange.Fill, error) {
	side := futures.SideTypeBuy
	if order.Side == market.SideSell {
		side = futures.SideTypeSell
	}
	var res *futures.CreateOrderResponse
	err := c.guard(func() error {
		var err error
		res, err = c.client.NewCreateOrderService().
			Symbol(symbolpkg.Binance.ToExchange(order.Symbol.Name)).
			Side(side).
			Type(futures.OrderTypeMarket).
			Quantity(formatQty(order.Quantity)).
			NewOrderResponseType(futures.NewOrderRespTypeRESULT).
			Do(ctx)
		return err
	})
	if err != nil {
		return exchange.Fill{}, market.Rejected(err)
	}
	fill := fillFromOrder(res, order.Quantity)
	logger.Infof("[binance] order %s %s %s filled %v @ %v", fill.OrderID, side, order.Symbol.Name, fill.FilledQty, fill.AvgPrice)
	return fill, nil
}

// OpenPositions lists non-flat positions from the position risk endpoint.
func (c *Client) OpenPositions(ctx context.Context) ([]exchange.BrokerPosition, error) {
	var rows []*futures.PositionRisk
	err := c.guard(func() error {
		var err error
		rows, err = c.client.NewGetPositionRiskService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("position risk: %w", err)
	}
	out := make([]exchange.BrokerPosition, 0, len(rows))
	for _, row := range rows {
		if bp, ok := positionFromRisk(row); ok {
			out = append(out, bp)
		}
	}
	return out, nil
}

// ClosePosition flattens sym with a reduce-only market order on the
// opposite side and returns the position as it was before the close.
func (c *Client) ClosePosition(ctx context.Context, sym market.Symbol) (exchange.BrokerPosition, error) {
	positions, err := c.OpenPositions(ctx)
	if err != nil {
		return exchange.BrokerPosition{}, err
	}
	target := symbolpkg.Binance.ToExchange(sym.Name)
	for _, bp := range positions {
		if !strings.EqualFold(bp.Symbol.Name, target) {
			continue
		}
		side := futures.SideTypeSell
		if bp.Side == market.SideSell {
			side = futures.SideTypeBuy
		}
		err := c.guard(func() error {
			_, err := c.client.NewCreateOrderService().
				Symbol(target).
				Side(side).
				Type(futures.OrderTypeMarket).
				Quantity(formatQty(bp.Quantity)).
				ReduceOnly(true).
				NewOrderResponseType(futures.NewOrderRespTypeRESULT).
				Do(ctx)
			return err
		})
		if err != nil {
			return bp, fmt.Errorf("close %s: %w", target, err)
		}
		return bp, nil
	}
	return exchange.BrokerPosition{}, fmt.Errorf("%w: no open %s position at broker", market.ErrPositionNotFound, target)
}

// Account maps wallet balance to balance and margin balance to equity.
func (c *Client) Account(ctx context.Context) (market.Account, error) {
	var acct *futures.Account
	err := c.guard(func() error {
		var err error
		acct, err = c.client.NewGetAccountService().Do(ctx)
		return err
	})
	if err != nil {
		return market.Account{}, fmt.Errorf("%w: %v", market.ErrAccountNotFound, err)
	}
	if acct == nil {
		return market.Account{}, market.ErrAccountNotFound
	}
	return market.Account{
		ID:       "binance-futures",
		Currency: "USDT",
		Balance:  parseFloat(acct.TotalWalletBalance),
		Equity:   parseFloat(acct.TotalMarginBalance),
		PL:       parseFloat(acct.TotalUnrealizedProfit),
	}, nil
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
