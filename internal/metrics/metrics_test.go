package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delta(t *testing.T, collector prometheus.Collector, observe func()) float64 {
	t.Helper()

	before := testutil.ToFloat64(collector)
	observe()
	return testutil.ToFloat64(collector) - before
}

type stubPrices struct{ err error }

func (s stubPrices) Price(context.Context, service.PriceQuery) (decimal.Decimal, error) {
	return decimal.NewFromInt(5), s.err
}

type stubTransactions struct {
	err error
	txs []model.RawTransaction
}

func (s stubTransactions) FetchTransactions(context.Context, service.FetchRequest) ([]model.RawTransaction, error) {
	return s.txs, s.err
}

func TestObservedPriceSource(t *testing.T) {
	ok := NewObservedPriceSource("test", stubPrices{})
	inc := delta(t, priceLookupsTotal.WithLabelValues("test", "success"), func() {
		price, err := ok.Price(context.Background(), service.PriceQuery{Symbol: "ETH"})
		require.NoError(t, err)
		assert.True(t, price.Equal(decimal.NewFromInt(5)))
	})
	assert.Equal(t, float64(1), inc)

	failing := NewObservedPriceSource("test", stubPrices{err: errors.New("boom")})
	inc = delta(t, priceLookupsTotal.WithLabelValues("test", "error"), func() {
		_, err := failing.Price(context.Background(), service.PriceQuery{Symbol: "ETH"})
		require.Error(t, err)
	})
	assert.Equal(t, float64(1), inc)

	unnamed := NewObservedPriceSource("", stubPrices{})
	inc = delta(t, priceLookupsTotal.WithLabelValues("unknown", "success"), func() {
		_, _ = unnamed.Price(context.Background(), service.PriceQuery{})
	})
	assert.Equal(t, float64(1), inc)
}

func TestObservedTransactionSource(t *testing.T) {
	source := NewObservedTransactionSource(stubTransactions{txs: make([]model.RawTransaction, 3)})
	req := service.FetchRequest{Chain: model.ChainBase}

	inc := delta(t, explorerTransactionsTotal.WithLabelValues("base"), func() {
		txs, err := source.FetchTransactions(context.Background(), req)
		require.NoError(t, err)
		assert.Len(t, txs, 3)
	})
	assert.Equal(t, float64(3), inc)

	failing := NewObservedTransactionSource(stubTransactions{err: errors.New("down")})
	inc = delta(t, explorerRequestsTotal.WithLabelValues("base", "error"), func() {
		_, err := failing.FetchTransactions(context.Background(), req)
		require.Error(t, err)
	})
	assert.Equal(t, float64(1), inc)
}

func TestRecordCalculationAndTextfile(t *testing.T) {
	RecordCalculation(model.CalculationRun{Method: model.MethodHIFO, Gains: 7, Unmatched: 2, OpenLots: 4})

	assert.Equal(t, float64(7), testutil.ToFloat64(calculationGains.WithLabelValues("HIFO")))
	assert.Equal(t, float64(2), testutil.ToFloat64(calculationUnmatched.WithLabelValues("HIFO")))
	assert.Equal(t, float64(4), testutil.ToFloat64(calculationOpenLots.WithLabelValues("HIFO")))

	path := filepath.Join(t.TempDir(), "cointax.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `cointax_calculation_gains{method="HIFO"} 7`)
}
