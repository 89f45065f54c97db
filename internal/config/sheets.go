// Package config loads application settings from viper and the environment.
package config

import (
	"os"

	"github.com/Veraticus/cointax/internal/sheets"
	"github.com/spf13/viper"
)

// LoadSheetsConfig loads Google Sheets configuration from Viper and environment variables.
// It follows this precedence:
// 1. Viper configuration (from config file or COINTAX_ env vars)
// 2. Direct environment variables (GOOGLE_SHEETS_*)
// 3. Default values
func LoadSheetsConfig() (*sheets.Config, error) {
	config := sheets.DefaultConfig()

	config.ServiceAccountPath = ExpandPath(firstNonEmpty(
		viper.GetString("sheets.service_account_path"),
		os.Getenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH")))
	config.ClientID = firstNonEmpty(viper.GetString("sheets.client_id"), os.Getenv("GOOGLE_SHEETS_CLIENT_ID"))
	config.ClientSecret = firstNonEmpty(viper.GetString("sheets.client_secret"), os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET"))
	config.RefreshToken = firstNonEmpty(viper.GetString("sheets.refresh_token"), os.Getenv("GOOGLE_SHEETS_REFRESH_TOKEN"))
	config.SpreadsheetID = firstNonEmpty(viper.GetString("sheets.spreadsheet_id"), os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"))
	config.SpreadsheetName = firstNonEmpty(
		viper.GetString("sheets.spreadsheet_name"),
		os.Getenv("GOOGLE_SHEETS_SPREADSHEET_NAME"),
		config.SpreadsheetName)

	if v := viper.GetString("sheets.time_zone"); v != "" {
		config.TimeZone = v
	}
	if v := viper.GetInt("sheets.batch_size"); v > 0 {
		config.BatchSize = v
	}
	if viper.IsSet("sheets.formatting") {
		config.EnableFormatting = viper.GetBool("sheets.formatting")
	}

	// The refresh token can also come from a saved `auth sheets` token file.
	if config.RefreshToken == "" && config.ServiceAccountPath == "" {
		if tokenFile := SheetsTokenFile(); tokenFile != "" {
			if token, err := sheets.LoadToken(tokenFile); err == nil {
				config.RefreshToken = token.RefreshToken
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SheetsTokenFile returns where the interactive OAuth flow stores its token.
func SheetsTokenFile() string {
	if v := viper.GetString("sheets.token_file"); v != "" {
		return ExpandPath(v)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return dir + "/cointax/sheets-token.json"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
