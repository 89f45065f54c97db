package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TaxLot is a quantity of a token acquired at one time for one cost.
type TaxLot struct {
	AcquiredAt        time.Time
	ID                string
	TokenSymbol       string
	TransactionHash   string
	CostBasis         decimal.Decimal
	Quantity          decimal.Decimal
	RemainingQuantity decimal.Decimal
}

// UnitCost returns the per-unit cost of the lot, or zero for an empty lot.
func (l TaxLot) UnitCost() decimal.Decimal {
	if l.Quantity.IsZero() {
		return decimal.Zero
	}
	return l.CostBasis.Div(l.Quantity)
}

// Symbol returns the lot's token symbol, or UNKNOWN when it has none.
func (l TaxLot) Symbol() string {
	if l.TokenSymbol == "" {
		return UnknownSymbol
	}
	return l.TokenSymbol
}

// IsOpen reports whether the lot still has quantity to match.
func (l TaxLot) IsOpen() bool {
	return l.RemainingQuantity.IsPositive()
}

// AccountingMethod selects the order in which lots are consumed.
type AccountingMethod string

// Accounting methods.
const (
	MethodFIFO AccountingMethod = "FIFO"
	MethodLIFO AccountingMethod = "LIFO"
	MethodHIFO AccountingMethod = "HIFO"
)

// DefaultMethod is used when none is configured.
const DefaultMethod = MethodFIFO

// ParseAccountingMethod parses a method name case-insensitively.
// An empty string yields the default method.
func ParseAccountingMethod(s string) (AccountingMethod, error) {
	switch m := AccountingMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case "":
		return DefaultMethod, nil
	case MethodFIFO, MethodLIFO, MethodHIFO:
		return m, nil
	default:
		return "", fmt.Errorf("unknown accounting method %q (want FIFO, LIFO or HIFO)", s)
	}
}

// LotMatch records how much of one lot a disposal consumed.
type LotMatch struct {
	AcquiredAt time.Time       `json:"acquired_at"`
	LotID      string          `json:"lot_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	CostBasis  decimal.Decimal `json:"cost_basis"`
}

// CapitalGain is the realized result of one disposal.
// UnmatchedQuantity is the part of the disposal that found no lot and
// was therefore given a zero cost basis.
type CapitalGain struct {
	DisposedAt        time.Time        `json:"disposed_at"`
	TransactionHash   string           `json:"transaction_hash"`
	TokenSymbol       string           `json:"token"`
	Method            AccountingMethod `json:"method"`
	MatchedLots       []LotMatch       `json:"matched_lots"`
	Quantity          decimal.Decimal  `json:"quantity"`
	Proceeds          decimal.Decimal  `json:"proceeds"`
	CostBasis         decimal.Decimal  `json:"cost_basis"`
	GainLoss          decimal.Decimal  `json:"gain_loss"`
	UnmatchedQuantity decimal.Decimal  `json:"unmatched_quantity"`
	ShortTerm         bool             `json:"short_term"`
}

// Term returns the holding-period label used in reports.
func (g CapitalGain) Term() string {
	if g.ShortTerm {
		return "Short-term"
	}
	return "Long-term"
}

// IsUnderCollateralized reports whether part of the disposal had no matching lot.
func (g CapitalGain) IsUnderCollateralized() bool {
	return g.UnmatchedQuantity.IsPositive()
}
