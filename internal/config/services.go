package config

import (
	"os"
	"strings"
	"time"

	"github.com/Veraticus/cointax/internal/explorer"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/pricing"
	"github.com/spf13/viper"
)

// SetDefaults registers default values for every key the commands read.
func SetDefaults() {
	viper.SetDefault("database.path", "~/.local/share/cointax/cointax.db")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("etherscan.requests_per_second", 5)
	viper.SetDefault("coingecko.requests_per_minute", 25)
	viper.SetDefault("coingecko.cache_ttl", 5*time.Minute)
	viper.SetDefault("classification.workers", 4)
	viper.SetDefault("tax.method", string(model.DefaultMethod))
}

// DatabasePath returns the expanded SQLite path.
func DatabasePath() string {
	return ExpandPath(viper.GetString("database.path"))
}

// ExplorerConfig builds the Etherscan client configuration. The API key falls
// back to ETHERSCAN_API_KEY so .env files written for other tools work.
func ExplorerConfig() explorer.Config {
	return explorer.Config{
		APIKey:            firstNonEmpty(viper.GetString("etherscan.api_key"), os.Getenv("ETHERSCAN_API_KEY")),
		BaseURL:           viper.GetString("etherscan.base_url"),
		RequestsPerSecond: viper.GetFloat64("etherscan.requests_per_second"),
	}
}

// PricingConfig builds the CoinGecko client configuration. A missing API key
// selects the free endpoint.
func PricingConfig() pricing.Config {
	return pricing.Config{
		APIKey:            firstNonEmpty(viper.GetString("coingecko.api_key"), os.Getenv("COINGECKO_API_KEY")),
		BaseURL:           viper.GetString("coingecko.base_url"),
		RequestsPerMinute: viper.GetInt("coingecko.requests_per_minute"),
		CacheTTL:          viper.GetDuration("coingecko.cache_ttl"),
	}
}

// StaticPrices returns the configured symbol to USD overrides.
func StaticPrices() map[string]string {
	return viper.GetStringMapString("pricing.static")
}

// AddressList reads a list of addresses, accepting either a YAML list or a
// comma separated string from the environment.
func AddressList(key string) []string {
	var out []string
	for _, v := range viper.GetStringSlice(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// AccountingMethod returns the configured method, or the flag value when set.
func AccountingMethod(flag string) (model.AccountingMethod, error) {
	return model.ParseAccountingMethod(firstNonEmpty(flag, viper.GetString("tax.method")))
}
