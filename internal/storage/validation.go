// Package storage persists transfers, classifications, tax lots and gains in SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
)

// Validation errors.
var (
	ErrNilContext            = errors.New("context cannot be nil")
	ErrEmptyString           = errors.New("string parameter cannot be empty")
	ErrNilParameter          = errors.New("parameter cannot be nil")
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrInvalidTransaction    = errors.New("invalid transaction")
	ErrInvalidClassification = errors.New("invalid classification")
	ErrInvalidLot            = errors.New("invalid tax lot")
	ErrInvalidGain           = errors.New("invalid capital gain")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateRawTransaction(tx *model.RawTransaction) error {
	if tx.Hash == "" {
		return fmt.Errorf("%w: missing hash", ErrInvalidTransaction)
	}
	if _, ok := tx.Chain.Info(); !ok {
		return fmt.Errorf("%w: unsupported chain %q", ErrInvalidTransaction, tx.Chain)
	}
	if tx.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidTransaction)
	}
	if tx.Value == "" {
		return fmt.Errorf("%w: missing value", ErrInvalidTransaction)
	}
	return nil
}

func validateClassified(tx *model.ClassifiedTransaction) error {
	if err := validateRawTransaction(&tx.RawTransaction); err != nil {
		return err
	}
	if _, err := model.ParseTransactionType(string(tx.Type)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidClassification, err)
	}
	if tx.Quantity.IsNegative() {
		return fmt.Errorf("%w: negative quantity", ErrInvalidClassification)
	}
	return nil
}

func validateLot(lot *model.TaxLot) error {
	if lot.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidLot)
	}
	if lot.TokenSymbol == "" {
		return fmt.Errorf("%w: missing token symbol", ErrInvalidLot)
	}
	if lot.RemainingQuantity.IsNegative() || lot.RemainingQuantity.GreaterThan(lot.Quantity) {
		return fmt.Errorf("%w: remaining quantity %s outside [0, %s]", ErrInvalidLot, lot.RemainingQuantity, lot.Quantity)
	}
	return nil
}

func validateGain(gain *model.CapitalGain) error {
	if gain.TransactionHash == "" {
		return fmt.Errorf("%w: missing transaction hash", ErrInvalidGain)
	}
	if !gain.GainLoss.Equal(gain.Proceeds.Sub(gain.CostBasis)) {
		return fmt.Errorf("%w: gain %s does not equal proceeds minus basis", ErrInvalidGain, gain.GainLoss)
	}
	return nil
}

func validateCalculation(calc *service.Calculation) error {
	if calc == nil {
		return fmt.Errorf("%w: calculation", ErrNilParameter)
	}
	if _, err := model.ParseAccountingMethod(string(calc.Run.Method)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	for i := range calc.Lots {
		if err := validateLot(&calc.Lots[i]); err != nil {
			return fmt.Errorf("lot at index %d: %w", i, err)
		}
	}
	for i := range calc.Gains {
		if err := validateGain(&calc.Gains[i]); err != nil {
			return fmt.Errorf("gain at index %d: %w", i, err)
		}
	}
	return nil
}
