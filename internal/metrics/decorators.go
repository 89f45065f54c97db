package metrics

import (
	"context"
	"time"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/shopspring/decimal"
)

// ObservedPriceSource records metrics around a price source.
type ObservedPriceSource struct {
	next service.PriceSource
	name string
}

// NewObservedPriceSource wraps next, labelling its metrics with name.
func NewObservedPriceSource(name string, next service.PriceSource) *ObservedPriceSource {
	if name == "" {
		name = "unknown"
	}
	return &ObservedPriceSource{next: next, name: name}
}

// Price implements service.PriceSource.
func (o *ObservedPriceSource) Price(ctx context.Context, q service.PriceQuery) (decimal.Decimal, error) {
	started := time.Now()
	price, err := o.next.Price(ctx, q)

	s := status(err)
	priceLookupsTotal.WithLabelValues(o.name, s).Inc()
	priceLookupDuration.WithLabelValues(o.name, s).Observe(time.Since(started).Seconds())

	return price, err
}

// ObservedTransactionSource records metrics around a transaction source.
type ObservedTransactionSource struct {
	next service.TransactionSource
}

// NewObservedTransactionSource wraps next.
func NewObservedTransactionSource(next service.TransactionSource) *ObservedTransactionSource {
	return &ObservedTransactionSource{next: next}
}

// FetchTransactions implements service.TransactionSource.
func (o *ObservedTransactionSource) FetchTransactions(ctx context.Context, req service.FetchRequest) ([]model.RawTransaction, error) {
	started := time.Now()
	txs, err := o.next.FetchTransactions(ctx, req)

	chain := string(req.Chain)
	if chain == "" {
		chain = "unknown"
	}
	s := status(err)
	explorerRequestsTotal.WithLabelValues(chain, s).Inc()
	explorerFetchDuration.WithLabelValues(chain, s).Observe(time.Since(started).Seconds())
	if err == nil {
		explorerTransactionsTotal.WithLabelValues(chain).Add(float64(len(txs)))
	}

	return txs, err
}

// RecordCalculation publishes the outcome of a calculation run.
func RecordCalculation(run model.CalculationRun) {
	method := string(run.Method)
	calculationGains.WithLabelValues(method).Set(float64(run.Gains))
	calculationUnmatched.WithLabelValues(method).Set(float64(run.Unmatched))
	calculationOpenLots.WithLabelValues(method).Set(float64(run.OpenLots))
}
