package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/cointax/internal/classify"
	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/samber/lo"
)

// ClassifyResult reports a classification pass.
type ClassifyResult struct {
	ByType map[model.TransactionType]int `json:"by_type,omitempty"`
	Result
	Total         int `json:"total"`
	Taxable       int `json:"taxable"`
	NonTaxable    int `json:"non_taxable"`
	Priced        int `json:"priced"`
	PriceFailures int `json:"price_failures"`
}

// Classify values and classifies every stored transfer and replaces the
// stored classification.
func (e *Engine) Classify(ctx context.Context) (*ClassifyResult, error) {
	raw, err := e.storage.GetRawTransactions(ctx, service.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(raw) == 0 {
		return &ClassifyResult{Result: failure(CodeNoTransactions,
			"No transactions found. Please fetch transactions first.")}, nil
	}

	owned, err := e.storage.GetOwnedAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load owned addresses: %w", err)
	}
	if len(owned) == 0 {
		return &ClassifyResult{Result: failure(CodeNoUserAddresses,
			"No user addresses found. Please add wallet addresses.")}, nil
	}
	if e.prices == nil {
		return nil, fmt.Errorf("%w: no price source configured", common.ErrMissingConfig)
	}

	classifier := classify.New(e.prices, classify.Options{
		Strategy: e.strategy,
		Progress: e.progress,
		Workers:  e.workers,
	})
	addresses := lo.Map(owned, func(a model.OwnedAddress, _ int) string { return a.Address })

	classified, err := classifier.Classify(ctx, raw, addresses)
	if err != nil {
		return nil, fmt.Errorf("failed to classify transactions: %w", err)
	}

	if err := e.storage.ReplaceClassifiedTransactions(ctx, classified.Transactions); err != nil {
		return nil, fmt.Errorf("failed to save classifications: %w", err)
	}

	slog.Info("Classified transactions",
		"total", len(classified.Transactions),
		"taxable", classified.Taxable,
		"price_failures", classified.PriceFailures)

	result := &ClassifyResult{
		Result:        success("Classified %d transactions", len(classified.Transactions)),
		ByType:        classified.ByType,
		Total:         len(classified.Transactions),
		Taxable:       classified.Taxable,
		NonTaxable:    len(classified.Transactions) - classified.Taxable,
		Priced:        classified.Priced,
		PriceFailures: classified.PriceFailures,
	}
	result.Warnings = classified.Warnings
	return result, nil
}
