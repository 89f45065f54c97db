// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TransactionType is the tax treatment assigned to a transaction.
type TransactionType string

// Transaction type constants.
const (
	TypeBuy          TransactionType = "BUY"
	TypeSell         TransactionType = "SELL"
	TypeSwap         TransactionType = "SWAP"
	TypeTransferIn   TransactionType = "TRANSFER_IN"
	TypeTransferOut  TransactionType = "TRANSFER_OUT"
	TypeIncome       TransactionType = "INCOME"
	TypeGiftReceived TransactionType = "GIFT_RECEIVED"
	TypeGiftSent     TransactionType = "GIFT_SENT"
	TypeUnknown      TransactionType = "UNKNOWN"
)

// AllTransactionTypes lists every type in display order.
var AllTransactionTypes = []TransactionType{
	TypeBuy, TypeSell, TypeSwap, TypeTransferIn, TypeTransferOut,
	TypeIncome, TypeGiftReceived, TypeGiftSent, TypeUnknown,
}

// ParseTransactionType converts a stored type name.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllTransactionTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// IsTaxable reports whether the type is a taxable event.
func (t TransactionType) IsTaxable() bool {
	switch t {
	case TypeSell, TypeSwap, TypeIncome:
		return true
	default:
		return false
	}
}

// IsAcquisition reports whether the type opens a tax lot.
func (t TransactionType) IsAcquisition() bool {
	switch t {
	case TypeBuy, TypeIncome, TypeTransferIn, TypeGiftReceived:
		return true
	default:
		return false
	}
}

// IsDisposal reports whether the type consumes tax lots.
func (t TransactionType) IsDisposal() bool {
	switch t {
	case TypeSell, TypeSwap, TypeTransferOut:
		return true
	default:
		return false
	}
}

// HasCostBasis reports whether the classifier records a cost basis for the type.
func (t TransactionType) HasCostBasis() bool {
	return t == TypeBuy || t == TypeTransferIn
}

// ClassifiedTransaction is a raw transaction with its tax treatment and USD valuation.
type ClassifiedTransaction struct {
	RawTransaction
	CostBasisUSD       *decimal.Decimal
	Type               TransactionType
	Quantity           decimal.Decimal
	FairMarketValueUSD decimal.Decimal
	Taxable            bool
	PriceMissing       bool
}

// LotCost returns the cost a lot opened by this transaction carries.
func (t ClassifiedTransaction) LotCost() decimal.Decimal {
	if t.CostBasisUSD != nil {
		return *t.CostBasisUSD
	}
	return t.FairMarketValueUSD
}
