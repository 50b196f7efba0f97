package position

import (
	"context"
	"errors"
	"fmt"

	"conductor/internal/gateway/exchange"
	"conductor/internal/market"
	"conductor/internal/store"
	"conductor/internal/trading"

	"github.com/shopspring/decimal"
)

const backtestAccountID = "backtest"

// LiveAccount reports the account as the broker sees it.
type LiveAccount struct {
	broker exchange.Broker
}

var _ trading.AccountSource = (*LiveAccount)(nil)

func NewLiveAccount(broker exchange.Broker) *LiveAccount {
	return &LiveAccount{broker: broker}
}

func (a *LiveAccount) Account(ctx context.Context) (market.Account, error) {
	acct, err := a.broker.Account(ctx)
	if err != nil {
		if errors.Is(err, market.ErrAccountNotFound) {
			return market.Account{}, err
		}
		return market.Account{}, fmt.Errorf("%w: %v", market.ErrAccountNotFound, err)
	}
	return acct, nil
}

// BacktestAccount derives balances from stored positions. Balance holds the
// starting balance plus realized P&L; PL holds the unrealized P&L of open
// positions at their last mark. Unmarked open positions count as flat.
type BacktestAccount struct {
	store    store.PositionStore
	start    decimal.Decimal
	currency string
}

var _ trading.AccountSource = (*BacktestAccount)(nil)

func NewBacktestAccount(st store.PositionStore, startingBalance float64, currency string) *BacktestAccount {
	if currency == "" {
		currency = "USD"
	}
	return &BacktestAccount{
		store:    st,
		start:    decimal.NewFromFloat(startingBalance),
		currency: currency,
	}
}

func (a *BacktestAccount) Account(ctx context.Context) (market.Account, error) {
	positions, err := a.store.GetPositions(ctx)
	if err != nil {
		return market.Account{}, fmt.Errorf("%w: %v", market.ErrAccountNotFound, err)
	}
	return Summarize(positions, a.start, a.currency), nil
}

// Summarize folds positions into an account snapshot.
func Summarize(positions []market.Position, start decimal.Decimal, currency string) market.Account {
	realized := decimal.Zero
	unrealized := decimal.Zero
	for _, p := range positions {
		if p.IsOpen() {
			// no mark yet means no price move since the fill
			if p.Marked() {
				unrealized = unrealized.Add(decimal.NewFromFloat(market.PositionPL(p)))
			}
			continue
		}
		realized = realized.Add(decimal.NewFromFloat(market.PositionPL(p)))
	}
	balance := start.Add(realized)
	return market.Account{
		ID:       backtestAccountID,
		Currency: currency,
		Balance:  balance.InexactFloat64(),
		PL:       unrealized.InexactFloat64(),
		Equity:   balance.Add(unrealized).InexactFloat64(),
	}
}
