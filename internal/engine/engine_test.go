package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/Veraticus/cointax/internal/storage"
	"github.com/Veraticus/cointax/internal/testutil"
	"github.com/Veraticus/cointax/internal/testutil/transfers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// priceFunc adapts a function to service.PriceSource.
type priceFunc func(service.PriceQuery) (decimal.Decimal, error)

func (f priceFunc) Price(_ context.Context, q service.PriceQuery) (decimal.Decimal, error) {
	return f(q)
}

// ethPrices values ETH at $1000 in its first 100 days and $3000 afterwards.
var ethPrices = priceFunc(func(q service.PriceQuery) (decimal.Decimal, error) {
	if q.Symbol != "ETH" {
		return decimal.Zero, fmt.Errorf("%w: %s", common.ErrUnknownToken, q.Symbol)
	}
	if q.At.Before(transfers.Day(100)) {
		return decimal.NewFromInt(1000), nil
	}
	return decimal.NewFromInt(3000), nil
})

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FetchTransactions(ctx context.Context, req service.FetchRequest) ([]model.RawTransaction, error) {
	args := m.Called(ctx, req)
	txs, _ := args.Get(0).([]model.RawTransaction)
	return txs, args.Error(1)
}

type mockCheckpointer struct {
	mock.Mock
}

func (m *mockCheckpointer) AutoCheckpoint(ctx context.Context, operation string) (*storage.CheckpointInfo, error) {
	args := m.Called(ctx, operation)
	info, _ := args.Get(0).(*storage.CheckpointInfo)
	return info, args.Error(1)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("lot-%d", n)
	}
}

func newTestEngine(t *testing.T, db *testutil.TestDB, cfg Config) *Engine {
	t.Helper()
	if cfg.NewLotID == nil {
		cfg.NewLotID = sequentialIDs()
	}
	cfg.Now = func() time.Time { return transfers.Day(1000) }
	return New(db.Storage, nil, ethPrices, cfg)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func year(y int) *int {
	return &y
}

func TestClassify_MissingInput(t *testing.T) {
	t.Run("no transactions", func(t *testing.T) {
		db := testutil.SetupTestDB(t, nil)
		result, err := newTestEngine(t, db, Config{}).Classify(context.Background())
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, CodeNoTransactions, result.Code)
	})

	t.Run("no owned addresses", func(t *testing.T) {
		db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{
			Transfers: transfers.NewBuilder(t).Receive("ETH", "1", transfers.Day(0)).Build(),
		})
		result, err := newTestEngine(t, db, Config{}).Classify(context.Background())
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, CodeNoUserAddresses, result.Code)
	})
}

func TestClassify(t *testing.T) {
	db := testutil.SetupTestDB(t, transfers.NewBuilder(t).
		Receive("ETH", "2", transfers.Day(0)).
		Send("ETH", "1", transfers.Day(400)).
		Receive("DOGE", "100", transfers.Day(10)).
		Transfer(transfers.Counterparty, transfers.Router, "ETH", "5", transfers.Day(20)).
		Build())

	var calls int
	e := newTestEngine(t, db, Config{Progress: func(_, _ int) { calls++ }})

	result, err := e.Classify(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 2, result.ByType[model.TypeTransferIn])
	assert.Equal(t, 1, result.ByType[model.TypeTransferOut])
	assert.Equal(t, 1, result.ByType[model.TypeUnknown])
	assert.Equal(t, 1, result.PriceFailures)
	assert.Equal(t, 0, result.Taxable)
	assert.Equal(t, 4, result.NonTaxable)
	assert.Len(t, result.Warnings, 2, "one price miss and one unknown transfer")

	stored, err := db.Storage.GetClassifiedTransactions(context.Background(), service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 4)
	assert.True(t, dec("2000").Equal(stored[0].FairMarketValueUSD))
	require.NotNil(t, stored[0].CostBasisUSD)
	assert.True(t, dec("2000").Equal(*stored[0].CostBasisUSD))
}

func TestCalculate_NoClassified(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	result, err := newTestEngine(t, db, Config{}).Calculate(context.Background(), model.MethodFIFO)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, CodeNoClassifiedTransactions, result.Code)
}

func TestCalculate_InvalidMethod(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	_, err := newTestEngine(t, db, Config{}).Calculate(context.Background(), "AVERAGE")
	require.Error(t, err)
}

func TestWorkflow(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t, transfers.NewBuilder(t).
		Receive("ETH", "1", transfers.Day(0)).
		Receive("ETH", "1", transfers.Day(200)).
		Send("ETH", "1.5", transfers.Day(400)).
		Build())
	e := newTestEngine(t, db, Config{})

	report, err := e.Report(ctx, ReportRequest{})
	require.NoError(t, err)
	assert.Equal(t, CodeNoGains, report.Code, "reporting before calculating")

	classified, err := e.Classify(ctx)
	require.NoError(t, err)
	require.True(t, classified.Success)

	calc, err := e.Calculate(ctx, "fifo")
	require.NoError(t, err)
	require.True(t, calc.Success, calc.Message)

	assert.Equal(t, model.MethodFIFO, calc.Run.Method)
	assert.Equal(t, 2, calc.Run.Acquisitions)
	assert.Equal(t, 1, calc.Run.Disposals)
	assert.Equal(t, 1, calc.Run.OpenLots)
	assert.Zero(t, calc.Run.Unmatched)
	assert.Equal(t, 3, calc.TotalClassified)
	assert.Empty(t, calc.Warnings)
	// Proceeds 4500; basis 1000 from the first lot and 1500 from half the second.
	assert.True(t, dec("2000").Equal(calc.Summary.TotalGainLoss), calc.Summary.TotalGainLoss.String())
	assert.Equal(t, 1, calc.Summary.LongTermCount)

	lots, err := db.Storage.GetTaxLots(ctx, service.LotFilter{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "lot-2", lots[0].ID)
	assert.True(t, dec("0.5").Equal(lots[0].RemainingQuantity))

	noGains, err := e.Report(ctx, ReportRequest{Year: year(2022)})
	require.NoError(t, err)
	assert.False(t, noGains.Success)
	assert.Equal(t, CodeNoGainsForYear, noGains.Code)
	assert.Contains(t, noGains.Message, "2022")

	report, err = e.Report(ctx, ReportRequest{Year: year(2023)})
	require.NoError(t, err)
	require.True(t, report.Success)
	assert.Equal(t, model.MethodFIFO, report.Document.Method)
	require.Len(t, report.Document.Gains, 1)
	assert.Len(t, report.Document.Gains[0].MatchedLots, 2)
	assert.Len(t, report.Lots, 2)
	assert.Len(t, report.Transactions, 3)
	assert.Empty(t, report.Warnings)
}

func TestCalculate_LIFOReplacesPreviousRun(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t, transfers.NewBuilder(t).
		Receive("ETH", "1", transfers.Day(0)).
		Receive("ETH", "1", transfers.Day(200)).
		Send("ETH", "1", transfers.Day(400)).
		Build())
	e := newTestEngine(t, db, Config{})

	_, err := e.Classify(ctx)
	require.NoError(t, err)

	_, err = e.Calculate(ctx, model.MethodFIFO)
	require.NoError(t, err)
	calc, err := e.Calculate(ctx, model.MethodLIFO)
	require.NoError(t, err)

	// LIFO sells the day-200 lot: held 200 days, so short-term with zero gain.
	assert.Equal(t, 1, calc.Summary.ShortTermCount)
	assert.True(t, calc.Summary.TotalGainLoss.IsZero())

	gains, err := db.Storage.GetCapitalGains(ctx, service.GainFilter{})
	require.NoError(t, err)
	require.Len(t, gains, 1)
	assert.Equal(t, model.MethodLIFO, gains[0].Method)

	report, err := e.Report(ctx, ReportRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.MethodLIFO, report.Document.Method)
}

func TestCalculate_UnderCollateralized(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t, transfers.NewBuilder(t).
		Receive("ETH", "1", transfers.Day(0)).
		Send("ETH", "3", transfers.Day(400)).
		Build())
	e := newTestEngine(t, db, Config{})

	_, err := e.Classify(ctx)
	require.NoError(t, err)
	calc, err := e.Calculate(ctx, model.MethodFIFO)
	require.NoError(t, err)

	assert.True(t, calc.Success)
	assert.Equal(t, 1, calc.Run.Unmatched)
	require.Len(t, calc.Warnings, 1)
	assert.Contains(t, calc.Warnings[0], "exceeded available lots")

	report, err := e.Report(ctx, ReportRequest{})
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "zero cost basis")
	assert.Equal(t, report.Warnings, report.Document.Warnings)
}

func TestCalculate_Checkpoints(t *testing.T) {
	ctx := context.Background()
	build := func(t *testing.T) *testutil.TestDB {
		return testutil.SetupTestDB(t, transfers.NewBuilder(t).
			Receive("ETH", "1", transfers.Day(0)).
			Build())
	}

	t.Run("records checkpoint", func(t *testing.T) {
		cp := &mockCheckpointer{}
		cp.On("AutoCheckpoint", mock.Anything, "calculate").Return(&storage.CheckpointInfo{ID: "auto-calculate-1"}, nil).Once()

		e := newTestEngine(t, build(t), Config{Checkpoints: cp})
		_, err := e.Classify(ctx)
		require.NoError(t, err)
		calc, err := e.Calculate(ctx, model.MethodFIFO)
		require.NoError(t, err)

		assert.Equal(t, "auto-calculate-1", calc.CheckpointID)
		cp.AssertExpectations(t)
	})

	t.Run("failure is a warning", func(t *testing.T) {
		cp := &mockCheckpointer{}
		cp.On("AutoCheckpoint", mock.Anything, "calculate").Return(nil, errors.New("disk full")).Once()

		e := newTestEngine(t, build(t), Config{Checkpoints: cp})
		_, err := e.Classify(ctx)
		require.NoError(t, err)
		calc, err := e.Calculate(ctx, model.MethodFIFO)
		require.NoError(t, err)

		assert.True(t, calc.Success)
		assert.Empty(t, calc.CheckpointID)
		require.Len(t, calc.Warnings, 1)
		assert.Contains(t, calc.Warnings[0], "disk full")
	})
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{})
	txs := transfers.NewBuilder(t).
		Receive("ETH", "1", transfers.Day(0)).
		Receive("USDC", "50", transfers.Day(1)).
		Build()

	source := &mockSource{}
	source.On("FetchTransactions", mock.Anything, mock.MatchedBy(func(req service.FetchRequest) bool {
		return req.Address == transfers.Owner && req.Chain == model.ChainEthereum
	})).Return(txs, nil).Twice()

	e := New(db.Storage, source, nil, Config{})
	req := service.FetchRequest{Address: "  0x1111111111111111111111111111111111111111 ", Chain: model.ChainEthereum}

	result, err := e.Fetch(ctx, req, "main wallet")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Inserted)

	again, err := e.Fetch(ctx, req, "main wallet")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inserted, "stored transfers are skipped")

	owned, err := db.Storage.GetOwnedAddresses(ctx)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "main wallet", owned[0].Label)
	assert.Equal(t, 2, db.MustCount())
	source.AssertExpectations(t)
}

func TestFetch_Errors(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{})

	_, err := New(db.Storage, nil, nil, Config{}).Fetch(ctx, service.FetchRequest{Address: transfers.Owner}, "")
	require.ErrorIs(t, err, common.ErrMissingConfig)

	source := &mockSource{}
	e := New(db.Storage, source, nil, Config{})

	_, err = e.Fetch(ctx, service.FetchRequest{Address: "not-an-address"}, "")
	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)

	source.On("FetchTransactions", mock.Anything, mock.Anything).Return(nil, common.ErrExplorerUnavailable).Once()
	_, err = e.Fetch(ctx, service.FetchRequest{Address: transfers.Owner, Chain: model.ChainBase}, "")
	require.ErrorIs(t, err, common.ErrExplorerUnavailable)
}

func TestFetch_Empty(t *testing.T) {
	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{})
	source := &mockSource{}
	source.On("FetchTransactions", mock.Anything, mock.Anything).Return([]model.RawTransaction{}, nil)

	result, err := New(db.Storage, source, nil, Config{}).Fetch(context.Background(),
		service.FetchRequest{Address: transfers.Owner, Chain: model.ChainFraxtal}, "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Warnings, 1)
}

func TestResult_Err(t *testing.T) {
	assert.NoError(t, Result{Success: true}.Err())
	assert.ErrorIs(t, Result{Code: CodeNoTransactions}.Err(), common.ErrNoTransactions)
	assert.ErrorIs(t, Result{Code: CodeNoUserAddresses}.Err(), common.ErrNoAddresses)
	assert.ErrorIs(t, Result{Code: CodeNoClassifiedTransactions}.Err(), common.ErrNoClassified)
	assert.ErrorIs(t, Result{Code: CodeNoGains}.Err(), common.ErrNoGains)
	assert.ErrorIs(t, Result{Code: CodeNoGainsForYear}.Err(), common.ErrNoGainsForYear)
	assert.EqualError(t, Result{Code: "OTHER"}.Err(), "OTHER")
}
