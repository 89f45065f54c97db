package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/cointax/internal/costbasis"
	"github.com/Veraticus/cointax/internal/metrics"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/report"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/samber/lo"
)

// CalculateResult reports a lot matching pass.
type CalculateResult struct {
	Result
	Run             model.CalculationRun `json:"run"`
	Summary         report.Summary       `json:"summary"`
	CheckpointID    string               `json:"checkpoint_id,omitempty"`
	TotalClassified int                  `json:"total_transactions"`
}

// Calculate builds lots from the full classified history, matches every
// disposal under method and replaces the stored lots and gains.
func (e *Engine) Calculate(ctx context.Context, method model.AccountingMethod) (*CalculateResult, error) {
	method, err := model.ParseAccountingMethod(string(method))
	if err != nil {
		return nil, err
	}

	txs, err := e.storage.GetClassifiedTransactions(ctx, service.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load classified transactions: %w", err)
	}
	if len(txs) == 0 {
		return &CalculateResult{Result: failure(CodeNoClassifiedTransactions,
			"No classified transactions found. Please fetch and classify transactions first.")}, nil
	}

	result := &CalculateResult{TotalClassified: len(txs)}

	if e.checkpoints != nil {
		info, cpErr := e.checkpoints.AutoCheckpoint(ctx, "calculate")
		if cpErr != nil {
			// Calculation only replaces derived data, so it proceeds.
			slog.Warn("Failed to create automatic checkpoint", "error", cpErr)
			result.Warnings = append(result.Warnings, "automatic checkpoint failed: "+cpErr.Error())
		} else {
			result.CheckpointID = info.ID
		}
	}

	lots := costbasis.BuildLotsWithIDs(costbasis.Acquisitions(txs), e.newLotID)
	disposals := costbasis.Disposals(txs)

	matched, err := costbasis.MatchDisposals(disposals, lots, method)
	if err != nil {
		return nil, fmt.Errorf("failed to match disposals: %w", err)
	}

	calc := &service.Calculation{
		Run: model.CalculationRun{
			RunAt:        e.now(),
			Method:       method,
			Acquisitions: len(lots),
			Disposals:    len(disposals),
			Gains:        len(matched.Gains),
			Unmatched:    lo.CountBy(matched.Gains, func(g model.CapitalGain) bool { return g.IsUnderCollateralized() }),
			OpenLots:     lo.CountBy(matched.Lots, func(l model.TaxLot) bool { return l.IsOpen() }),
		},
		Lots:  matched.Lots,
		Gains: matched.Gains,
	}
	if _, err := e.storage.SaveCalculation(ctx, calc); err != nil {
		return nil, fmt.Errorf("failed to save calculation: %w", err)
	}
	metrics.RecordCalculation(calc.Run)

	slog.Info("Calculated capital gains",
		"method", method,
		"acquisitions", calc.Run.Acquisitions,
		"disposals", calc.Run.Disposals,
		"unmatched", calc.Run.Unmatched,
		"open_lots", calc.Run.OpenLots)

	result.Result.Success = true
	result.Message = fmt.Sprintf("Successfully calculated capital gains using %s method", method)
	result.Warnings = append(result.Warnings, matched.Warnings...)
	result.Run = calc.Run
	result.Summary = report.Aggregate(matched.Gains, txs, nil)
	return result, nil
}
