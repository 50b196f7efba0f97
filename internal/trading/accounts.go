package trading

import (
	"context"

	"conductor/internal/market"
)

// AccountSource reports the account for the active mode.
type AccountSource interface {
	Account(ctx context.Context) (market.Account, error)
}

type Accounts struct {
	source AccountSource
}

func NewAccounts(src AccountSource) *Accounts {
	return &Accounts{source: src}
}

func (a *Accounts) Account(ctx context.Context) (market.Account, error) {
	if a == nil || a.source == nil {
		return market.Account{}, market.ErrAccountNotFound
	}
	return a.source.Account(ctx)
}
