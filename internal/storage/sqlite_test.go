package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner    = "0x1111111111111111111111111111111111111111"
	stranger = "0x2222222222222222222222222222222222222222"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func day(n int) time.Time {
	return time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func createTestTransactions(count int) []model.RawTransaction {
	txs := make([]model.RawTransaction, count)
	for i := range txs {
		txs[i] = model.RawTransaction{
			Hash:        fmt.Sprintf("0x%04x", i+1),
			Chain:       model.ChainEthereum,
			Timestamp:   day(count - i),
			From:        stranger,
			To:          owner,
			Value:       "1000000000000000000",
			TokenSymbol: "ETH",
			BlockNumber: uint64(100 + i),
		}
	}
	return txs
}

func TestNewSQLiteStorage(t *testing.T) {
	_, err := NewSQLiteStorage(" ")
	assert.ErrorIs(t, err, ErrEmptyString)

	store, err := NewSQLiteStorage(MemoryPath)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate(context.Background()))

	_, err = store.NewCheckpointManager()
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSQLiteStorage_SaveRawTransactions(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	txs := createTestTransactions(3)
	n, err := store.SaveRawTransactions(ctx, txs)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Re-importing the same transfers is a no-op.
	n, err = store.SaveRawTransactions(ctx, txs)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// A token transfer in the same transaction is stored separately.
	token := txs[0]
	token.ID = token.Hash + ":7"
	token.TokenSymbol = "USDC"
	token.TokenAddress = "0xA0B8"
	token.TokenDecimals = 6
	n, err = store.SaveRawTransactions(ctx, []model.RawTransaction{token})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.CountRawTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	got, err := store.GetRawTransactions(ctx, service.TransactionFilter{TokenSymbol: "usdc"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0x0001:7", got[0].Key())
	assert.Equal(t, "0xa0b8", got[0].TokenAddress)
	assert.Equal(t, 6, got[0].Decimals())
	assert.Equal(t, uint64(100), got[0].BlockNumber)
	assert.True(t, got[0].Timestamp.Equal(txs[0].Timestamp))
}

func TestSQLiteStorage_SaveRawTransactions_Invalid(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*model.RawTransaction)
	}{
		{name: "missing hash", mutate: func(tx *model.RawTransaction) { tx.Hash = "" }},
		{name: "unsupported chain", mutate: func(tx *model.RawTransaction) { tx.Chain = "solana" }},
		{name: "missing timestamp", mutate: func(tx *model.RawTransaction) { tx.Timestamp = time.Time{} }},
		{name: "missing value", mutate: func(tx *model.RawTransaction) { tx.Value = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs := createTestTransactions(2)
			tt.mutate(&txs[1])
			_, err := store.SaveRawTransactions(ctx, txs)
			assert.ErrorIs(t, err, ErrInvalidTransaction)
		})
	}

	count, err := store.CountRawTransactions(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLiteStorage_GetRawTransactions_Filter(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.SaveRawTransactions(ctx, createTestTransactions(5))
	require.NoError(t, err)

	all, err := store.GetRawTransactions(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Timestamp.Before(all[i-1].Timestamp), "transactions must be ordered by time")
	}

	start, end := day(2), day(4)
	ranged, err := store.GetRawTransactions(ctx, service.TransactionFilter{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	assert.Len(t, ranged, 3)

	page, err := store.GetRawTransactions(ctx, service.TransactionFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[1].Hash, page[0].Hash)

	none, err := store.GetRawTransactions(ctx, service.TransactionFilter{Chain: model.ChainBase})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStorage_OwnedAddresses(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.AddOwnedAddress(ctx, &model.OwnedAddress{Address: "0xABCDEF0000000000000000000000000000000001", Label: "hot"}))
	require.NoError(t, store.AddOwnedAddress(ctx, &model.OwnedAddress{Address: owner, Chain: model.ChainBase}))

	err := store.AddOwnedAddress(ctx, &model.OwnedAddress{Address: "0xabcdef0000000000000000000000000000000001"})
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	err = store.AddOwnedAddress(ctx, &model.OwnedAddress{Address: "not-an-address"})
	assert.ErrorIs(t, err, common.ErrInvalidAddress)

	addrs, err := store.GetOwnedAddresses(ctx)
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", addrs[0].Address)
	assert.Equal(t, "hot", addrs[0].Label)
	assert.Equal(t, model.ChainBase, addrs[1].Chain)

	require.NoError(t, store.RemoveOwnedAddress(ctx, "0xABCDEF0000000000000000000000000000000001"))
	assert.ErrorIs(t, store.RemoveOwnedAddress(ctx, "0xabcdef0000000000000000000000000000000001"), common.ErrNotFound)

	addrs, err = store.GetOwnedAddresses(ctx)
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
}

func TestSQLiteStorage_ClassifiedTransactions(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	raw := createTestTransactions(2)
	_, err := store.SaveRawTransactions(ctx, raw)
	require.NoError(t, err)

	basis := decimal.RequireFromString("1500.25")
	classified := []model.ClassifiedTransaction{
		{
			RawTransaction:     raw[0],
			Type:               model.TypeTransferIn,
			Quantity:           decimal.NewFromInt(1),
			FairMarketValueUSD: basis,
			CostBasisUSD:       &basis,
		},
		{
			RawTransaction: raw[1],
			Type:           model.TypeIncome,
			Quantity:       decimal.RequireFromString("0.000000000000000001"),
			Taxable:        true,
			PriceMissing:   true,
		},
	}
	require.NoError(t, store.ReplaceClassifiedTransactions(ctx, classified))

	got, err := store.GetClassifiedTransactions(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// raw[1] is older, so it comes first.
	income := got[0]
	assert.Equal(t, model.TypeIncome, income.Type)
	assert.True(t, income.Taxable)
	assert.True(t, income.PriceMissing)
	assert.Nil(t, income.CostBasisUSD)
	assert.Equal(t, "0.000000000000000001", income.Quantity.String())

	transfer := got[1]
	assert.Equal(t, model.TypeTransferIn, transfer.Type)
	require.NotNil(t, transfer.CostBasisUSD)
	assert.True(t, transfer.CostBasisUSD.Equal(basis))
	assert.Equal(t, raw[0].Hash, transfer.Hash)

	// Replacing drops the previous classification.
	require.NoError(t, store.ReplaceClassifiedTransactions(ctx, classified[:1]))
	got, err = store.GetClassifiedTransactions(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	invalid := classified[0]
	invalid.Type = "BRIBE"
	err = store.ReplaceClassifiedTransactions(ctx, []model.ClassifiedTransaction{invalid})
	assert.ErrorIs(t, err, ErrInvalidClassification)

	orphan := classified[0]
	orphan.Hash = "0xdead"
	orphan.ID = ""
	assert.Error(t, store.ReplaceClassifiedTransactions(ctx, []model.ClassifiedTransaction{orphan}))
}

func testCalculation() *service.Calculation {
	lotA := model.TaxLot{
		ID:                "lot-a",
		TransactionHash:   "0xa",
		TokenSymbol:       "ETH",
		AcquiredAt:        day(0),
		Quantity:          decimal.NewFromInt(2),
		RemainingQuantity: decimal.Zero,
		CostBasis:         decimal.NewFromInt(3000),
	}
	lotB := model.TaxLot{
		ID:                "lot-b",
		TransactionHash:   "0xb",
		TokenSymbol:       "ETH",
		AcquiredAt:        day(10),
		Quantity:          decimal.NewFromInt(1),
		RemainingQuantity: decimal.RequireFromString("0.5"),
		CostBasis:         decimal.NewFromInt(2000),
	}

	return &service.Calculation{
		Run: model.CalculationRun{
			Method:       model.MethodFIFO,
			Acquisitions: 2,
			Disposals:    2,
			Gains:        2,
			OpenLots:     1,
		},
		Lots: []model.TaxLot{lotA, lotB},
		Gains: []model.CapitalGain{
			{
				TransactionHash: "0xsell1",
				TokenSymbol:     "ETH",
				Method:          model.MethodFIFO,
				DisposedAt:      day(20),
				Quantity:        decimal.RequireFromString("2.5"),
				Proceeds:        decimal.NewFromInt(6000),
				CostBasis:       decimal.NewFromInt(4000),
				GainLoss:        decimal.NewFromInt(2000),
				ShortTerm:       true,
				MatchedLots: []model.LotMatch{
					{LotID: "lot-a", AcquiredAt: day(0), Quantity: decimal.NewFromInt(2), CostBasis: decimal.NewFromInt(3000)},
					{LotID: "lot-b", AcquiredAt: day(10), Quantity: decimal.RequireFromString("0.5"), CostBasis: decimal.NewFromInt(1000)},
				},
			},
			{
				TransactionHash:   "0xsell2",
				TokenSymbol:       "ETH",
				Method:            model.MethodFIFO,
				DisposedAt:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
				Quantity:          decimal.NewFromInt(1),
				Proceeds:          decimal.NewFromInt(100),
				CostBasis:         decimal.Zero,
				GainLoss:          decimal.NewFromInt(100),
				UnmatchedQuantity: decimal.NewFromInt(1),
				ShortTerm:         true,
			},
		},
	}
}

func TestSQLiteStorage_SaveCalculation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.GetLatestCalculation(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)

	runID, err := store.SaveCalculation(ctx, testCalculation())
	require.NoError(t, err)
	assert.Positive(t, runID)

	run, err := store.GetLatestCalculation(ctx)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, model.MethodFIFO, run.Method)
	assert.Equal(t, 1, run.OpenLots)
	assert.False(t, run.RunAt.IsZero())

	lots, err := store.GetTaxLots(ctx, service.LotFilter{})
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, "lot-a", lots[0].ID)

	open, err := store.GetTaxLots(ctx, service.LotFilter{OpenOnly: true, TokenSymbol: "eth"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "lot-b", open[0].ID)
	assert.Equal(t, "0.5", open[0].RemainingQuantity.String())

	gains, err := store.GetCapitalGains(ctx, service.GainFilter{})
	require.NoError(t, err)
	require.Len(t, gains, 2)
	require.Len(t, gains[0].MatchedLots, 2)
	assert.Equal(t, "lot-a", gains[0].MatchedLots[0].LotID)
	assert.Equal(t, "lot-b", gains[0].MatchedLots[1].LotID)
	assert.True(t, gains[0].GainLoss.Equal(decimal.NewFromInt(2000)))
	assert.Empty(t, gains[1].MatchedLots)
	assert.True(t, gains[1].UnmatchedQuantity.Equal(decimal.NewFromInt(1)))

	year := 2024
	gains, err = store.GetCapitalGains(ctx, service.GainFilter{Year: &year})
	require.NoError(t, err)
	require.Len(t, gains, 1)
	assert.Equal(t, "0xsell2", gains[0].TransactionHash)

	// A second run replaces lots and gains but keeps run history.
	calc := testCalculation()
	calc.Run.Method = model.MethodHIFO
	calc.Gains = calc.Gains[:1]
	secondID, err := store.SaveCalculation(ctx, calc)
	require.NoError(t, err)
	assert.Greater(t, secondID, runID)

	gains, err = store.GetCapitalGains(ctx, service.GainFilter{})
	require.NoError(t, err)
	assert.Len(t, gains, 1)

	run, err = store.GetLatestCalculation(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.MethodHIFO, run.Method)
}

func TestSQLiteStorage_SaveCalculation_Invalid(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.SaveCalculation(ctx, nil)
	assert.ErrorIs(t, err, ErrNilParameter)

	calc := testCalculation()
	calc.Lots[1].RemainingQuantity = decimal.NewFromInt(5)
	_, err = store.SaveCalculation(ctx, calc)
	assert.ErrorIs(t, err, ErrInvalidLot)

	calc = testCalculation()
	calc.Gains[0].GainLoss = decimal.NewFromInt(1)
	_, err = store.SaveCalculation(ctx, calc)
	assert.ErrorIs(t, err, ErrInvalidGain)

	calc = testCalculation()
	calc.Run.Method = "AVERAGE"
	_, err = store.SaveCalculation(ctx, calc)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = store.GetLatestCalculation(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_ConcurrentAccess(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := createTestTransactions(1)[0]
			tx.Hash = fmt.Sprintf("0xconcurrent%d", i)
			if _, err := store.SaveRawTransactions(ctx, []model.RawTransaction{tx}); err != nil {
				errs <- err
				return
			}
			if _, err := store.GetRawTransactions(ctx, service.TransactionFilter{}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	count, err := store.CountRawTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}
