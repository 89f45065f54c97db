package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/cointax/internal/classify"
	"github.com/Veraticus/cointax/internal/cli"
	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/config"
	"github.com/Veraticus/cointax/internal/engine"
	"github.com/Veraticus/cointax/internal/explorer"
	"github.com/Veraticus/cointax/internal/metrics"
	"github.com/Veraticus/cointax/internal/pricing"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/Veraticus/cointax/internal/storage"
)

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func closeStorage(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

// newTransactionSource builds the instrumented explorer client.
func newTransactionSource() (service.TransactionSource, error) {
	client, err := explorer.NewEtherscanClient(config.ExplorerConfig())
	if err != nil {
		return nil, err
	}
	return metrics.NewObservedTransactionSource(client), nil
}

// newPriceSource builds the price chain: configured static prices first,
// then CoinGecko, each instrumented.
func newPriceSource() (service.PriceSource, error) {
	coingecko := metrics.NewObservedPriceSource("coingecko", pricing.NewCoinGeckoClient(config.PricingConfig()))

	static, err := pricing.NewStaticSource(config.StaticPrices())
	if err != nil {
		return nil, err
	}
	if static.Len() == 0 {
		return coingecko, nil
	}
	return pricing.Fallback{metrics.NewObservedPriceSource("static", static), coingecko}, nil
}

// classificationStrategy applies the configured contract hints, if any.
func classificationStrategy() classify.Strategy {
	income := config.AddressList("classification.income_contracts")
	routers := config.AddressList("classification.swap_routers")
	if len(income) == 0 && len(routers) == 0 {
		return classify.DirectionalStrategy{}
	}
	return classify.ContractAwareStrategy{
		Fallback:        classify.DirectionalStrategy{},
		IncomeContracts: classify.NewAddressSet(income...),
		SwapRouters:     classify.NewAddressSet(routers...),
	}
}

// resultError turns an unsuccessful engine result into a user-facing error.
func resultError(r engine.Result) error {
	if r.Success {
		return nil
	}
	return common.NewUserError(r.Message, r.Err())
}

func printWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	const shown = 10
	fmt.Fprintln(w, cli.RenderWarnings(warnings[:min(len(warnings), shown)]))
	if len(warnings) > shown {
		fmt.Fprintln(w, cli.SubtleStyle.Render(fmt.Sprintf("  ... and %d more (see --log-level debug)", len(warnings)-shown)))
	}
	for _, warning := range warnings {
		slog.Debug("Warning", "message", warning)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDate accepts YYYY-MM-DD in UTC. Empty input yields nil.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", s), err)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

func optionalYear(year int) *int {
	if year == 0 {
		return nil
	}
	return &year
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatRelativeTime(t time.Time, now time.Time) string {
	duration := now.Sub(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return plural(int(duration.Minutes()), "minute") + " ago"
	case duration < 24*time.Hour:
		return plural(int(duration.Hours()), "hour") + " ago"
	case duration < 7*24*time.Hour:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "yesterday"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
