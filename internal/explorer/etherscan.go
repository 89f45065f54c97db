// Package explorer imports on-chain transfers from the Etherscan v2 multichain API.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Etherscan v2 endpoint shared by all chains.
const DefaultBaseURL = "https://api.etherscan.io/v2/api"

const (
	defaultRequestsPerSecond = 5
	noTransactionsMessage    = "No transactions found"
)

// Config configures the Etherscan client.
type Config struct {
	HTTPClient        *http.Client
	APIKey            string
	BaseURL           string
	Retry             service.RetryOptions
	RequestsPerSecond float64
}

// EtherscanClient implements service.TransactionSource.
type EtherscanClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	baseURL    string
	retry      service.RetryOptions
}

// NewEtherscanClient creates a client for the Etherscan v2 API.
func NewEtherscanClient(cfg Config) (*EtherscanClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: etherscan.api_key (or ETHERSCAN_API_KEY) is required", common.ErrMissingConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = service.DefaultRetryOptions()
	}

	return &EtherscanClient{
		httpClient: cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		retry:      cfg.Retry,
	}, nil
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type transferRecord struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	GasUsed         string `json:"gasUsed"`
	GasPrice        string `json:"gasPrice"`
	IsError         string `json:"isError"`
	ContractAddress string `json:"contractAddress"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
	LogIndex        string `json:"logIndex"`
}

// FetchTransactions returns the native and, optionally, ERC-20 transfers of an
// address, deduplicated and ordered by timestamp.
func (c *EtherscanClient) FetchTransactions(ctx context.Context, req service.FetchRequest) ([]model.RawTransaction, error) {
	info, ok := req.Chain.Info()
	if !ok {
		return nil, fmt.Errorf("unsupported chain %q", req.Chain)
	}
	address, err := common.NormalizeAddress(req.Address)
	if err != nil {
		return nil, err
	}

	startBlock, endBlock := "0", "99999999"
	if req.StartDate != nil {
		block, blockErr := c.BlockAt(ctx, req.Chain, *req.StartDate, "after")
		if blockErr != nil {
			return nil, blockErr
		}
		startBlock = strconv.FormatUint(block, 10)
	}
	if req.EndDate != nil {
		block, blockErr := c.BlockAt(ctx, req.Chain, *req.EndDate, "before")
		if blockErr != nil {
			return nil, blockErr
		}
		endBlock = strconv.FormatUint(block, 10)
	}

	actions := []string{"txlist"}
	if req.IncludeTokens {
		actions = append(actions, "tokentx")
	}

	seen := make(map[string]struct{})
	var out []model.RawTransaction
	for _, action := range actions {
		records, fetchErr := c.transfers(ctx, info.ChainID, action, address, startBlock, endBlock)
		if fetchErr != nil {
			return nil, fetchErr
		}
		for _, rec := range records {
			tx, convErr := toRawTransaction(rec, req.Chain, info, action == "tokentx")
			if convErr != nil {
				slog.Warn("Skipping malformed explorer record", "hash", rec.Hash, "error", convErr)
				continue
			}
			if rec.IsError == "1" {
				continue
			}
			if _, dup := seen[tx.Key()]; dup {
				continue
			}
			seen[tx.Key()] = struct{}{}
			out = append(out, tx)
		}
	}

	slices.SortStableFunc(out, func(a, b model.RawTransaction) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	slog.Info("Fetched transactions from explorer",
		"chain", req.Chain,
		"address", address,
		"count", len(out))

	return out, nil
}

// BlockAt returns the block closest to t. closest is "before" or "after".
func (c *EtherscanClient) BlockAt(ctx context.Context, chain model.Chain, t time.Time, closest string) (uint64, error) {
	info, ok := chain.Info()
	if !ok {
		return 0, fmt.Errorf("unsupported chain %q", chain)
	}

	params := url.Values{
		"module":    {"block"},
		"action":    {"getblocknobytime"},
		"timestamp": {strconv.FormatInt(t.Unix(), 10)},
		"closest":   {closest},
	}

	var result string
	if err := c.call(ctx, info.ChainID, params, &result); err != nil {
		return 0, fmt.Errorf("failed to resolve block for %s: %w", t.UTC().Format(time.DateOnly), err)
	}
	block, err := strconv.ParseUint(result, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid block number %q", common.ErrExplorerUnavailable, result)
	}
	return block, nil
}

func (c *EtherscanClient) transfers(ctx context.Context, chainID int, action, address, startBlock, endBlock string) ([]transferRecord, error) {
	params := url.Values{
		"module":     {"account"},
		"action":     {action},
		"address":    {address},
		"startblock": {startBlock},
		"endblock":   {endBlock},
		"sort":       {"asc"},
	}

	var records []transferRecord
	if err := c.call(ctx, chainID, params, &records); err != nil {
		if errors.Is(err, errNoTransactions) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", action, err)
	}
	return records, nil
}

var errNoTransactions = errors.New(noTransactionsMessage)

func (c *EtherscanClient) call(ctx context.Context, chainID int, params url.Values, out any) error {
	params.Set("chainid", strconv.Itoa(chainID))
	params.Set("apikey", c.apiKey)
	u := c.baseURL + "?" + params.Encode()

	return common.WithRetry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return common.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return common.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrExplorerUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("%w: status %d: %s", common.ErrExplorerUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
				return err
			}
			return common.Permanent(err)
		}

		var envelope apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return common.Permanent(fmt.Errorf("failed to decode explorer response: %w", err))
		}

		if envelope.Status != "1" {
			if envelope.Message == noTransactionsMessage {
				return common.Permanent(errNoTransactions)
			}
			var detail string
			_ = json.Unmarshal(envelope.Result, &detail)
			if strings.Contains(strings.ToLower(detail), "rate limit") {
				return common.ErrRateLimit
			}
			return common.Permanent(fmt.Errorf("%w: %s: %s", common.ErrExplorerUnavailable, envelope.Message, detail))
		}

		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return common.Permanent(fmt.Errorf("failed to decode explorer result: %w", err))
		}
		return nil
	}, c.retry)
}

func toRawTransaction(rec transferRecord, chain model.Chain, info model.ChainInfo, token bool) (model.RawTransaction, error) {
	ts, err := strconv.ParseInt(rec.TimeStamp, 10, 64)
	if err != nil {
		return model.RawTransaction{}, fmt.Errorf("invalid timestamp %q: %w", rec.TimeStamp, err)
	}
	block, err := strconv.ParseUint(rec.BlockNumber, 10, 64)
	if err != nil {
		return model.RawTransaction{}, fmt.Errorf("invalid block number %q: %w", rec.BlockNumber, err)
	}

	tx := model.RawTransaction{
		Hash:        rec.Hash,
		Chain:       chain,
		Timestamp:   time.Unix(ts, 0).UTC(),
		From:        strings.ToLower(rec.From),
		To:          strings.ToLower(rec.To),
		Value:       rec.Value,
		BlockNumber: block,
		GasUsed:     rec.GasUsed,
		GasPrice:    rec.GasPrice,
		TokenSymbol: info.NativeSymbol,
	}

	if token {
		tx.ID = rec.Hash + ":" + rec.LogIndex
		tx.TokenSymbol = rec.TokenSymbol
		tx.TokenAddress = strings.ToLower(rec.ContractAddress)
		if rec.TokenDecimal != "" {
			decimals, convErr := strconv.Atoi(rec.TokenDecimal)
			if convErr != nil {
				return model.RawTransaction{}, fmt.Errorf("invalid token decimals %q: %w", rec.TokenDecimal, convErr)
			}
			tx.TokenDecimals = decimals
		}
	}

	return tx, nil
}
