// Package pricing provides historical USD prices for crypto assets.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// CoinGecko endpoints.
const (
	FreeBaseURL = "https://api.coingecko.com/api/v3"
	ProBaseURL  = "https://pro-api.coingecko.com/api/v3"
)

const (
	defaultRequestsPerMinute = 30
	defaultCacheTTL          = 5 * time.Minute
	historyDateLayout        = "02-01-2006"
)

// knownCoins maps common symbols to CoinGecko coin IDs.
var knownCoins = map[string]string{
	"ETH":   "ethereum",
	"WETH":  "weth",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"DAI":   "dai",
	"WBTC":  "wrapped-bitcoin",
	"BTC":   "bitcoin",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"AAVE":  "aave",
	"COMP":  "compound-governance-token",
	"MKR":   "maker",
	"SNX":   "havven",
	"CRV":   "curve-dao-token",
	"SUSHI": "sushi",
	"YFI":   "yearn-finance",
	"FRAX":  "frax",
}

// assetPlatforms maps chains to CoinGecko asset platform IDs.
var assetPlatforms = map[model.Chain]string{
	model.ChainEthereum: "ethereum",
	model.ChainBase:     "base",
	model.ChainFraxtal:  "fraxtal",
}

// Config configures the CoinGecko client.
type Config struct {
	HTTPClient        *http.Client
	APIKey            string
	BaseURL           string
	Retry             service.RetryOptions
	CacheTTL          time.Duration
	RequestsPerMinute int
}

// CoinGeckoClient looks up historical daily prices from CoinGecko.
// It is safe for concurrent use.
type CoinGeckoClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *cache.Cache
	apiKey     string
	baseURL    string
	retry      service.RetryOptions
}

// NewCoinGeckoClient creates a client. A configured API key selects the pro endpoint.
func NewCoinGeckoClient(cfg Config) *CoinGeckoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = FreeBaseURL
		if cfg.APIKey != "" {
			cfg.BaseURL = ProBaseURL
		}
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultRequestsPerMinute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = service.DefaultRetryOptions()
	}

	return &CoinGeckoClient{
		httpClient: cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		cache:      cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		retry:      cfg.Retry,
	}
}

type historyResponse struct {
	MarketData *struct {
		CurrentPrice map[string]decimal.Decimal `json:"current_price"`
	} `json:"market_data"`
	ID string `json:"id"`
}

type contractResponse struct {
	ID string `json:"id"`
}

type searchResponse struct {
	Coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	} `json:"coins"`
}

// Price returns the USD price of one unit of the queried asset on the query's UTC day.
func (c *CoinGeckoClient) Price(ctx context.Context, q service.PriceQuery) (decimal.Decimal, error) {
	id, err := c.coinID(ctx, q)
	if err != nil {
		return decimal.Zero, err
	}

	date := q.At.UTC().Format(historyDateLayout)
	key := "price:" + id + ":" + date
	if cached, ok := c.cache.Get(key); ok {
		return cached.(decimal.Decimal), nil
	}

	var resp historyResponse
	params := url.Values{"date": {date}, "localization": {"false"}}
	if err := c.get(ctx, "/coins/"+url.PathEscape(id)+"/history", params, &resp); err != nil {
		return decimal.Zero, err
	}

	if resp.MarketData == nil {
		return decimal.Zero, fmt.Errorf("%w: no market data for %s on %s", common.ErrPriceUnavailable, id, date)
	}
	price, ok := resp.MarketData.CurrentPrice["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no USD price for %s on %s", common.ErrPriceUnavailable, id, date)
	}

	c.cache.SetDefault(key, price)
	return price, nil
}

// coinID resolves a query to a CoinGecko coin ID: known symbols first, then
// the token contract on its chain, then a symbol search.
func (c *CoinGeckoClient) coinID(ctx context.Context, q service.PriceQuery) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(q.Symbol))
	if id, ok := knownCoins[symbol]; ok {
		return id, nil
	}

	key := "id:" + string(q.Chain) + ":" + strings.ToLower(q.TokenAddress) + ":" + symbol
	if cached, ok := c.cache.Get(key); ok {
		return cached.(string), nil
	}

	if platform, ok := assetPlatforms[q.Chain]; ok && q.TokenAddress != "" {
		var resp contractResponse
		err := c.get(ctx, "/coins/"+platform+"/contract/"+strings.ToLower(q.TokenAddress), nil, &resp)
		switch {
		case err == nil && resp.ID != "":
			c.cache.Set(key, resp.ID, cache.NoExpiration)
			return resp.ID, nil
		case err != nil && !errors.Is(err, common.ErrUnknownToken):
			return "", err
		}
	}

	if symbol == "" || symbol == model.UnknownSymbol {
		return "", fmt.Errorf("%w: transfer has no token symbol", common.ErrUnknownToken)
	}

	var resp searchResponse
	if err := c.get(ctx, "/search", url.Values{"query": {symbol}}, &resp); err != nil {
		return "", err
	}
	for _, coin := range resp.Coins {
		if strings.EqualFold(coin.Symbol, symbol) {
			c.cache.Set(key, coin.ID, cache.NoExpiration)
			return coin.ID, nil
		}
	}

	return "", fmt.Errorf("%w: %s", common.ErrUnknownToken, symbol)
}

func (c *CoinGeckoClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	return common.WithRetry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return common.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return common.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-cg-pro-api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("coingecko request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.Warn("CoinGecko rate limit hit", "path", path)
			return common.ErrRateLimit
		case resp.StatusCode == http.StatusNotFound:
			return common.Permanent(fmt.Errorf("%w: %s", common.ErrUnknownToken, path))
		case resp.StatusCode >= http.StatusInternalServerError:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("coingecko error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return common.Permanent(fmt.Errorf("%w: coingecko error %d: %s", common.ErrPriceUnavailable, resp.StatusCode, strings.TrimSpace(string(body))))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return common.Permanent(fmt.Errorf("failed to decode coingecko response: %w", err))
		}
		return nil
	}, c.retry)
}
