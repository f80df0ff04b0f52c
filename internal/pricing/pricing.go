// Package pricing resolves fiat-equivalent values for non-fiat assets.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/groblegark/wealthd/internal/model"
)

// ErrNoPrice is returned when a source has no quote for the requested asset.
var ErrNoPrice = errors.New("pricing: no price available")

// Source supplies asset prices in minor units of a fiat currency.
type Source interface {
	// Price returns the price of one unit of the asset as of the given
	// instant, in minor units of fiatCurrency.
	Price(ctx context.Context, assetSymbol, fiatCurrency string, asOf time.Time) (*model.AssetPrice, error)
}

// StaticSource serves a fixed quote table. It backs the REFRESH_RATES job and
// acts as the fallback when no stored price covers an enrichment request.
type StaticSource struct {
	quotes map[string]map[string]int64 // asset symbol -> fiat currency -> price minor
}

// NewStaticSource returns a StaticSource with a small built-in quote table.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		quotes: map[string]map[string]int64{
			"BTC":  {"EUR": 6250000000, "USD": 6800000000},
			"ETH":  {"EUR": 230000000, "USD": 250000000},
			"USDT": {"EUR": 92, "USD": 100},
		},
	}
}

func (s *StaticSource) Price(ctx context.Context, assetSymbol, fiatCurrency string, asOf time.Time) (*model.AssetPrice, error) {
	byFiat, ok := s.quotes[assetSymbol]
	if !ok {
		return nil, ErrNoPrice
	}
	price, ok := byFiat[fiatCurrency]
	if !ok {
		return nil, ErrNoPrice
	}
	return &model.AssetPrice{
		AssetSymbol:  assetSymbol,
		FiatCurrency: fiatCurrency,
		PriceMinor:   price,
		AsOf:         asOf.UTC(),
	}, nil
}

// Quotes returns every quote in the table stamped at the given instant, for
// bulk upsert into the price store.
func (s *StaticSource) Quotes(asOf time.Time) []*model.AssetPrice {
	var prices []*model.AssetPrice
	for symbol, byFiat := range s.quotes {
		for fiat, price := range byFiat {
			prices = append(prices, &model.AssetPrice{
				AssetSymbol:  symbol,
				FiatCurrency: fiat,
				PriceMinor:   price,
				AsOf:         asOf.UTC(),
			})
		}
	}
	return prices
}
