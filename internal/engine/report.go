package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/report"
	"github.com/Veraticus/cointax/internal/service"
)

// ReportRequest selects the gains to report.
type ReportRequest struct {
	Year        *int
	TokenSymbol string
}

// ReportResult carries a report document and the data behind it.
type ReportResult struct {
	Result
	Document     report.Document               `json:"document"`
	Transactions []model.ClassifiedTransaction `json:"-"`
	Lots         []model.TaxLot                `json:"-"`
}

// Report assembles the stored gains of the latest calculation into a document.
func (e *Engine) Report(ctx context.Context, req ReportRequest) (*ReportResult, error) {
	gains, err := e.storage.GetCapitalGains(ctx, service.GainFilter{TokenSymbol: req.TokenSymbol})
	if err != nil {
		return nil, fmt.Errorf("failed to load capital gains: %w", err)
	}
	if len(gains) == 0 {
		return &ReportResult{Result: failure(CodeNoGains,
			"No capital gains calculated. Please calculate cost basis first.")}, nil
	}
	if req.Year != nil && len(report.FilterGains(gains, req.Year)) == 0 {
		return &ReportResult{Result: failure(CodeNoGainsForYear,
			"No capital gains found for year %d", *req.Year)}, nil
	}

	method := model.DefaultMethod
	run, err := e.storage.GetLatestCalculation(ctx)
	switch {
	case err == nil:
		method = run.Method
	case !errors.Is(err, common.ErrNotFound):
		return nil, fmt.Errorf("failed to load calculation: %w", err)
	}

	txs, err := e.storage.GetClassifiedTransactions(ctx, service.TransactionFilter{TokenSymbol: req.TokenSymbol})
	if err != nil {
		return nil, fmt.Errorf("failed to load classified transactions: %w", err)
	}
	lots, err := e.storage.GetTaxLots(ctx, service.LotFilter{TokenSymbol: req.TokenSymbol})
	if err != nil {
		return nil, fmt.Errorf("failed to load tax lots: %w", err)
	}

	doc := report.NewDocument(gains, txs, req.Year, method)

	period := "all years"
	if req.Year != nil {
		period = fmt.Sprintf("%d", *req.Year)
	}
	result := &ReportResult{
		Result:       success("Generated report for %s using %s", period, method),
		Document:     doc,
		Transactions: txs,
		Lots:         lots,
	}
	result.Warnings = doc.Warnings
	return result, nil
}
