package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/shopspring/decimal"
)

// StaticSource serves fixed prices regardless of date. It is meant for
// stablecoins and for offline runs.
type StaticSource struct {
	prices map[string]decimal.Decimal
}

// NewStaticSource builds a source from symbol to USD price strings.
func NewStaticSource(prices map[string]string) (*StaticSource, error) {
	s := &StaticSource{prices: make(map[string]decimal.Decimal, len(prices))}
	for symbol, raw := range prices {
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: static price for %s: %v", common.ErrInvalidConfig, symbol, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("%w: static price for %s is negative", common.ErrInvalidConfig, symbol)
		}
		s.prices[strings.ToUpper(symbol)] = price
	}
	return s, nil
}

// Len returns the number of configured prices.
func (s *StaticSource) Len() int {
	return len(s.prices)
}

// Price implements service.PriceSource.
func (s *StaticSource) Price(_ context.Context, q service.PriceQuery) (decimal.Decimal, error) {
	if price, ok := s.prices[strings.ToUpper(q.Symbol)]; ok {
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("%w: no static price for %s", common.ErrPriceUnavailable, q.Symbol)
}

// Fallback tries each source in order and returns the first price found.
type Fallback []service.PriceSource

// Price implements service.PriceSource.
func (f Fallback) Price(ctx context.Context, q service.PriceQuery) (decimal.Decimal, error) {
	var errs []error
	for _, source := range f {
		price, err := source.Price(ctx, q)
		if err == nil {
			return price, nil
		}
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no price sources configured", common.ErrPriceUnavailable)
	}
	return decimal.Zero, errors.Join(errs...)
}
