// Package report aggregates realized gains and income and renders tax reports.
package report

import (
	"slices"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Summary holds the aggregated totals of a report.
type Summary struct {
	Year               *int            `json:"year,omitempty"`
	ShortTermGainLoss  decimal.Decimal `json:"short_term_gain_loss"`
	LongTermGainLoss   decimal.Decimal `json:"long_term_gain_loss"`
	TotalGainLoss      decimal.Decimal `json:"total_gain_loss"`
	TotalIncome        decimal.Decimal `json:"total_income"`
	TotalProceeds      decimal.Decimal `json:"total_proceeds"`
	TotalCostBasis     decimal.Decimal `json:"total_cost_basis"`
	ShortTermCount     int             `json:"short_term_count"`
	LongTermCount      int             `json:"long_term_count"`
	IncomeCount        int             `json:"income_count"`
	UnmatchedDisposals int             `json:"unmatched_disposals"`
	PriceMissing       int             `json:"price_missing"`
}

// DisposalCount returns the number of gains included in the summary.
func (s Summary) DisposalCount() int {
	return s.ShortTermCount + s.LongTermCount
}

// FilterGains returns the gains disposed of in the given UTC year.
func FilterGains(gains []model.CapitalGain, year *int) []model.CapitalGain {
	if year == nil {
		return gains
	}
	return lo.Filter(gains, func(g model.CapitalGain, _ int) bool {
		return g.DisposedAt.UTC().Year() == *year
	})
}

// Aggregate totals gains and income, optionally restricted to one UTC year.
// Inputs are not modified; empty inputs produce a zero summary.
func Aggregate(gains []model.CapitalGain, txs []model.ClassifiedTransaction, year *int) Summary {
	summary := Summary{Year: year}

	for _, g := range FilterGains(gains, year) {
		if g.ShortTerm {
			summary.ShortTermGainLoss = summary.ShortTermGainLoss.Add(g.GainLoss)
			summary.ShortTermCount++
		} else {
			summary.LongTermGainLoss = summary.LongTermGainLoss.Add(g.GainLoss)
			summary.LongTermCount++
		}
		summary.TotalProceeds = summary.TotalProceeds.Add(g.Proceeds)
		summary.TotalCostBasis = summary.TotalCostBasis.Add(g.CostBasis)
		if g.IsUnderCollateralized() {
			summary.UnmatchedDisposals++
		}
	}
	summary.TotalGainLoss = summary.ShortTermGainLoss.Add(summary.LongTermGainLoss)

	for _, tx := range txs {
		if year != nil && tx.Timestamp.UTC().Year() != *year {
			continue
		}
		if tx.PriceMissing {
			summary.PriceMissing++
		}
		if tx.Type == model.TypeIncome {
			summary.TotalIncome = summary.TotalIncome.Add(tx.FairMarketValueUSD)
			summary.IncomeCount++
		}
	}

	return summary
}

// TokenTotal is the realized result for one token.
type TokenTotal struct {
	TokenSymbol string          `json:"token"`
	GainLoss    decimal.Decimal `json:"gain_loss"`
	Proceeds    decimal.Decimal `json:"proceeds"`
	Disposals   int             `json:"disposals"`
}

// ByToken totals gains per token, sorted by symbol.
func ByToken(gains []model.CapitalGain) []TokenTotal {
	grouped := lo.GroupBy(gains, func(g model.CapitalGain) string { return g.TokenSymbol })
	symbols := lo.Keys(grouped)
	slices.Sort(symbols)

	return lo.Map(symbols, func(symbol string, _ int) TokenTotal {
		total := TokenTotal{TokenSymbol: symbol}
		for _, g := range grouped[symbol] {
			total.GainLoss = total.GainLoss.Add(g.GainLoss)
			total.Proceeds = total.Proceeds.Add(g.Proceeds)
			total.Disposals++
		}
		return total
	})
}
