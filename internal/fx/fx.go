// Package fx supplies exchange rates to the ledger operations.
package fx

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrUnsupportedPair = errors.New("unsupported currency pair")

// Provider returns how many units of `to` one unit of `from` buys.
type Provider interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Fixed serves constant rates. Inverse pairs are derived automatically.
type Fixed struct {
	rates map[string]decimal.Decimal
}

func NewFixed() *Fixed {
	return &Fixed{rates: make(map[string]decimal.Decimal)}
}

// NewFixedNGN returns a provider for the USD/NGN pair only.
func NewFixedNGN(ngnPerUSD decimal.Decimal) *Fixed {
	return NewFixed().With("USD", "NGN", ngnPerUSD)
}

func (f *Fixed) With(from, to string, rate decimal.Decimal) *Fixed {
	f.rates[from+"/"+to] = rate
	if !rate.IsZero() {
		f.rates[to+"/"+from] = decimal.NewFromInt(1).DivRound(rate, 12)
	}
	return f
}

func (f *Fixed) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := f.rates[from+"/"+to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrUnsupportedPair, from, to)
	}
	return rate, nil
}

// Convert converts amount and rounds to cents.
func Convert(ctx context.Context, p Provider, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	rate, err := p.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(2), nil
}
