// Package sheets exports tax reports to Google Sheets.
package sheets

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // time zone checks do not depend on host zoneinfo

	"github.com/Veraticus/cointax/internal/common"
)

// DefaultSpreadsheetName titles spreadsheets created by the writer.
const DefaultSpreadsheetName = "Crypto Tax Report"

// AuthMethod is the credential kind a Config carries.
type AuthMethod int

// Credential kinds.
const (
	AuthNone AuthMethod = iota
	AuthRefreshToken
	AuthServiceAccount
)

// Config holds the configuration for the Google Sheets writer. When
// SpreadsheetID is empty a new spreadsheet named SpreadsheetName is created.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	SpreadsheetID      string
	SpreadsheetName    string
	TimeZone           string
	BatchSize          int
	RetryAttempts      int
	RetryDelay         time.Duration
	EnableFormatting   bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		SpreadsheetName:  DefaultSpreadsheetName,
		TimeZone:         "Etc/UTC",
		BatchSize:        1000,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
		EnableFormatting: true,
	}
}

// Auth reports which credentials are configured. Incomplete refresh-token
// credentials count as none.
func (c *Config) Auth() AuthMethod {
	switch {
	case c.ServiceAccountPath != "":
		return AuthServiceAccount
	case c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != "":
		return AuthRefreshToken
	default:
		return AuthNone
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	hasToken := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	switch {
	case c.Auth() == AuthNone:
		errs = append(errs, fmt.Errorf("%w: no service account or OAuth2 refresh token", common.ErrMissingConfig))
	case hasToken && c.ServiceAccountPath != "":
		errs = append(errs, fmt.Errorf("%w: both a service account and an OAuth2 token are set", common.ErrInvalidConfig))
	}

	if c.SpreadsheetID == "" && c.SpreadsheetName == "" {
		errs = append(errs, fmt.Errorf("%w: a spreadsheet ID or name is required", common.ErrMissingConfig))
	}
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			errs = append(errs, fmt.Errorf("%w: time zone %q", common.ErrInvalidConfig, c.TimeZone))
		}
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: batch size must be positive", common.ErrInvalidConfig))
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("%w: retry settings cannot be negative", common.ErrInvalidConfig))
	}

	return errors.Join(errs...)
}
