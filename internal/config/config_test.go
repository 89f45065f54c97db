package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("COINTAX_TEST_DIR", "/data")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "tilde", in: "~", want: home},
		{name: "tilde prefix", in: "~/tax.db", want: filepath.Join(home, "tax.db")},
		{name: "env var", in: "$COINTAX_TEST_DIR/tax.db", want: "/data/tax.db"},
		{name: "plain", in: "/tmp/tax.db", want: "/tmp/tax.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("COINTAX_DOTENV_A=from-file\nCOINTAX_DOTENV_B=from-file\n"), 0600))

	t.Setenv("COINTAX_DOTENV_B", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("COINTAX_DOTENV_A") })

	loaded, err := LoadDotEnv(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, []string{path}, loaded)
	assert.Equal(t, "from-file", os.Getenv("COINTAX_DOTENV_A"))
	assert.Equal(t, "from-env", os.Getenv("COINTAX_DOTENV_B"), "existing variables are not overridden")
}

func TestLoadDotEnv_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOT VALID 'QUOTE\n"), 0600))

	_, err := LoadDotEnv(path)
	require.Error(t, err)
}

func TestLoadSheetsConfig(t *testing.T) {
	resetViper(t)
	t.Setenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "")
	t.Setenv("GOOGLE_SHEETS_CLIENT_ID", "env-client")
	t.Setenv("GOOGLE_SHEETS_CLIENT_SECRET", "env-secret")
	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_NAME", "")
	viper.Set("sheets.refresh_token", "viper-token")
	viper.Set("sheets.client_id", "viper-client")
	viper.Set("sheets.batch_size", 50)

	cfg, err := LoadSheetsConfig()
	require.NoError(t, err)

	assert.Equal(t, "viper-client", cfg.ClientID, "viper wins over env")
	assert.Equal(t, "env-secret", cfg.ClientSecret)
	assert.Equal(t, "viper-token", cfg.RefreshToken)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, "Crypto Tax Report", cfg.SpreadsheetName)
}

func TestLoadSheetsConfig_Unconfigured(t *testing.T) {
	resetViper(t)
	viper.Set("sheets.token_file", filepath.Join(t.TempDir(), "none.json"))
	for _, key := range []string{"SERVICE_ACCOUNT_PATH", "CLIENT_ID", "CLIENT_SECRET", "REFRESH_TOKEN"} {
		t.Setenv("GOOGLE_SHEETS_"+key, "")
	}

	_, err := LoadSheetsConfig()
	require.Error(t, err)
}

func TestServiceConfigs(t *testing.T) {
	resetViper(t)
	SetDefaults()
	t.Setenv("ETHERSCAN_API_KEY", "env-etherscan")
	t.Setenv("COINGECKO_API_KEY", "")
	viper.Set("coingecko.api_key", "cg-key")
	viper.Set("pricing.static", map[string]string{"usdc": "1"})
	viper.Set("classification.swap_routers", []string{"0xaa, 0xbb", "0xcc"})

	assert.Equal(t, "env-etherscan", ExplorerConfig().APIKey)
	assert.InDelta(t, 5.0, ExplorerConfig().RequestsPerSecond, 0.001)
	assert.Equal(t, "cg-key", PricingConfig().APIKey)
	assert.Equal(t, 25, PricingConfig().RequestsPerMinute)
	assert.Equal(t, map[string]string{"usdc": "1"}, StaticPrices())
	assert.Equal(t, []string{"0xaa", "0xbb", "0xcc"}, AddressList("classification.swap_routers"))

	method, err := AccountingMethod("")
	require.NoError(t, err)
	assert.Equal(t, model.MethodFIFO, method)

	method, err = AccountingMethod("hifo")
	require.NoError(t, err)
	assert.Equal(t, model.MethodHIFO, method)

	_, err = AccountingMethod("avg")
	require.Error(t, err)
}
