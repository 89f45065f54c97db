package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var priceDay = time.Date(2023, 3, 15, 17, 30, 0, 0, time.UTC)

func testClient(t *testing.T, handler http.HandlerFunc, apiKey string) *CoinGeckoClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewCoinGeckoClient(Config{
		BaseURL:           server.URL,
		APIKey:            apiKey,
		RequestsPerMinute: 600000,
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
	})
}

func TestCoinGeckoClient_KnownSymbol(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/coins/ethereum/history", r.URL.Path)
		assert.Equal(t, "15-03-2023", r.URL.Query().Get("date"))
		assert.Equal(t, "secret", r.Header.Get("x-cg-pro-api-key"))
		_, _ = w.Write([]byte(`{"id":"ethereum","market_data":{"current_price":{"usd":1650.25,"eur":1500}}}`))
	}, "secret")

	q := service.PriceQuery{Symbol: "eth", At: priceDay, Chain: model.ChainEthereum}
	price, err := client.Price(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("1650.25")))

	// Same day is served from cache.
	_, err = client.Price(context.Background(), service.PriceQuery{Symbol: "ETH", At: priceDay.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCoinGeckoClient_ContractLookup(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/base/contract/0xabc":
			_, _ = w.Write([]byte(`{"id":"degen-base"}`))
		case "/coins/degen-base/history":
			_, _ = w.Write([]byte(`{"market_data":{"current_price":{"usd":0.0123}}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}, "")

	price, err := client.Price(context.Background(), service.PriceQuery{
		Symbol:       "DEGEN",
		TokenAddress: "0xABC",
		Chain:        model.ChainBase,
		At:           priceDay,
	})
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.0123")))
}

func TestCoinGeckoClient_SearchFallback(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/ethereum/contract/0xdef":
			w.WriteHeader(http.StatusNotFound)
		case "/search":
			assert.Equal(t, "PEPE", r.URL.Query().Get("query"))
			_, _ = w.Write([]byte(`{"coins":[{"id":"pepe-fake","symbol":"PEPEX"},{"id":"pepe","symbol":"pepe"}]}`))
		case "/coins/pepe/history":
			_, _ = w.Write([]byte(`{"market_data":{"current_price":{"usd":"0.000001"}}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, "")

	price, err := client.Price(context.Background(), service.PriceQuery{
		Symbol:       "PEPE",
		TokenAddress: "0xdef",
		Chain:        model.ChainEthereum,
		At:           priceDay,
	})
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.000001")))
}

func TestCoinGeckoClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		query   service.PriceQuery
		wantErr error
	}{
		{
			name: "unknown symbol",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"coins":[]}`))
			},
			query:   service.PriceQuery{Symbol: "NOPE", At: priceDay},
			wantErr: common.ErrUnknownToken,
		},
		{
			name:    "no symbol",
			handler: func(http.ResponseWriter, *http.Request) {},
			query:   service.PriceQuery{Symbol: model.UnknownSymbol, At: priceDay},
			wantErr: common.ErrUnknownToken,
		},
		{
			name: "missing market data",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"id":"ethereum"}`))
			},
			query:   service.PriceQuery{Symbol: "ETH", At: priceDay},
			wantErr: common.ErrPriceUnavailable,
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			query:   service.PriceQuery{Symbol: "ETH", At: priceDay},
			wantErr: common.ErrPriceUnavailable,
		},
		{
			name: "persistent rate limit",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			query:   service.PriceQuery{Symbol: "ETH", At: priceDay},
			wantErr: common.ErrMaxRetries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testClient(t, tt.handler, "")
			_, err := client.Price(context.Background(), tt.query)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCoinGeckoClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"market_data":{"current_price":{"usd":2}}}`))
	}, "")

	price, err := client.Price(context.Background(), service.PriceQuery{Symbol: "USDC", At: priceDay})
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewCoinGeckoClient_BaseURL(t *testing.T) {
	assert.Equal(t, FreeBaseURL, NewCoinGeckoClient(Config{}).baseURL)
	assert.Equal(t, ProBaseURL, NewCoinGeckoClient(Config{APIKey: "k"}).baseURL)
}

func TestStaticSource(t *testing.T) {
	source, err := NewStaticSource(map[string]string{"usdc": "1", "DAI": "1.0"})
	require.NoError(t, err)
	assert.Equal(t, 2, source.Len())

	price, err := source.Price(context.Background(), service.PriceQuery{Symbol: "USDC"})
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(1)))

	_, err = source.Price(context.Background(), service.PriceQuery{Symbol: "ETH"})
	assert.ErrorIs(t, err, common.ErrPriceUnavailable)

	_, err = NewStaticSource(map[string]string{"X": "abc"})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
	_, err = NewStaticSource(map[string]string{"X": "-1"})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

type erroringSource struct{ err error }

func (e erroringSource) Price(context.Context, service.PriceQuery) (decimal.Decimal, error) {
	return decimal.Zero, e.err
}

func TestFallback(t *testing.T) {
	static, err := NewStaticSource(map[string]string{"USDC": "1"})
	require.NoError(t, err)

	errFirst := errors.New("first failed")
	chain := Fallback{erroringSource{err: errFirst}, static}

	price, err := chain.Price(context.Background(), service.PriceQuery{Symbol: "USDC"})
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(1)))

	_, err = chain.Price(context.Background(), service.PriceQuery{Symbol: "ETH"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errFirst)
	assert.ErrorIs(t, err, common.ErrPriceUnavailable)

	_, err = Fallback{}.Price(context.Background(), service.PriceQuery{Symbol: "ETH"})
	assert.ErrorIs(t, err, common.ErrPriceUnavailable)
}
