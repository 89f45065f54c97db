// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/shopspring/decimal"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate   *time.Time
	EndDate     *time.Time
	Chain       model.Chain
	TokenSymbol string
	Limit       int
	Offset      int
}

// LotFilter narrows tax lot queries.
type LotFilter struct {
	TokenSymbol string
	OpenOnly    bool
}

// GainFilter narrows capital gain queries. Year is a UTC calendar year.
type GainFilter struct {
	Year        *int
	TokenSymbol string
}

// Calculation is the complete output of one matching pass.
type Calculation struct {
	Run   model.CalculationRun
	Lots  []model.TaxLot
	Gains []model.CapitalGain
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Raw transaction operations
	SaveRawTransactions(ctx context.Context, transactions []model.RawTransaction) (int, error)
	GetRawTransactions(ctx context.Context, filter TransactionFilter) ([]model.RawTransaction, error)
	CountRawTransactions(ctx context.Context) (int, error)

	// Owned address operations
	AddOwnedAddress(ctx context.Context, address *model.OwnedAddress) error
	RemoveOwnedAddress(ctx context.Context, address string) error
	GetOwnedAddresses(ctx context.Context) ([]model.OwnedAddress, error)

	// Classification operations
	ReplaceClassifiedTransactions(ctx context.Context, transactions []model.ClassifiedTransaction) error
	GetClassifiedTransactions(ctx context.Context, filter TransactionFilter) ([]model.ClassifiedTransaction, error)

	// Lot and gain operations
	SaveCalculation(ctx context.Context, calc *Calculation) (int64, error)
	GetLatestCalculation(ctx context.Context) (*model.CalculationRun, error)
	GetTaxLots(ctx context.Context, filter LotFilter) ([]model.TaxLot, error)
	GetCapitalGains(ctx context.Context, filter GainFilter) ([]model.CapitalGain, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// PriceQuery identifies the asset and moment to price.
type PriceQuery struct {
	At           time.Time
	Symbol       string
	TokenAddress string
	Chain        model.Chain
}

// PriceSource returns the USD price of one unit of an asset.
type PriceSource interface {
	Price(ctx context.Context, query PriceQuery) (decimal.Decimal, error)
}

// FetchRequest describes an explorer import.
type FetchRequest struct {
	StartDate     *time.Time
	EndDate       *time.Time
	Address       string
	Chain         model.Chain
	IncludeTokens bool
}

// TransactionSource retrieves raw transfers for an address.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, req FetchRequest) ([]model.RawTransaction, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions is used by the HTTP clients when none are configured.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}
