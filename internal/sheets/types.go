package sheets

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/report"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Tab titles, in spreadsheet order.
const (
	TabSummary  = "Summary"
	TabGains    = "Capital Gains"
	TabIncome   = "Income"
	TabTokens   = "Token Totals"
	TabOpenLots = "Open Lots"
)

// Tabs lists every tab the writer maintains.
var Tabs = []string{TabSummary, TabGains, TabIncome, TabTokens, TabOpenLots}

// GainRow represents a single row in the Capital Gains tab.
type GainRow struct {
	DateAcquired string
	DateSold     time.Time
	Token        string
	Term         string
	Quantity     decimal.Decimal
	Proceeds     decimal.Decimal
	CostBasis    decimal.Decimal
	GainLoss     decimal.Decimal
	Unmatched    decimal.Decimal
	Transaction  string
}

// IncomeRow represents a single row in the Income tab.
type IncomeRow struct {
	Date         time.Time
	Token        string
	Quantity     decimal.Decimal
	ValueUSD     decimal.Decimal
	Transaction  string
	PriceMissing bool
}

// LotRow represents a single row in the Open Lots tab.
type LotRow struct {
	Acquired  time.Time
	Token     string
	Remaining decimal.Decimal
	UnitCost  decimal.Decimal
	CostBasis decimal.Decimal
}

// TabData holds all the data for the complete spreadsheet export.
type TabData struct {
	Method   model.AccountingMethod
	Summary  report.Summary
	Gains    []GainRow
	Income   []IncomeRow
	Tokens   []report.TokenTotal
	OpenLots []LotRow
	Warnings []string
}

// BuildTabData shapes a report document, the classified transactions and the
// current lots into spreadsheet rows. Income is restricted to the report year.
func BuildTabData(doc report.Document, txs []model.ClassifiedTransaction, lots []model.TaxLot) TabData {
	data := TabData{
		Method:   doc.Method,
		Summary:  doc.Summary,
		Tokens:   doc.Tokens,
		Warnings: doc.Warnings,
	}

	data.Gains = lo.Map(doc.Gains, func(g model.CapitalGain, _ int) GainRow {
		return GainRow{
			DateAcquired: acquiredLabel(g),
			DateSold:     g.DisposedAt,
			Token:        g.TokenSymbol,
			Term:         g.Term(),
			Quantity:     g.Quantity,
			Proceeds:     g.Proceeds,
			CostBasis:    g.CostBasis,
			GainLoss:     g.GainLoss,
			Unmatched:    g.UnmatchedQuantity,
			Transaction:  g.TransactionHash,
		}
	})

	for _, tx := range txs {
		if tx.Type != model.TypeIncome {
			continue
		}
		if year := doc.Summary.Year; year != nil && tx.Timestamp.UTC().Year() != *year {
			continue
		}
		data.Income = append(data.Income, IncomeRow{
			Date:         tx.Timestamp,
			Token:        tx.Symbol(),
			Quantity:     tx.Quantity,
			ValueUSD:     tx.FairMarketValueUSD,
			Transaction:  tx.Hash,
			PriceMissing: tx.PriceMissing,
		})
	}

	open := lo.Filter(lots, func(l model.TaxLot, _ int) bool { return l.IsOpen() })
	slices.SortStableFunc(open, func(a, b model.TaxLot) int {
		if c := strings.Compare(a.TokenSymbol, b.TokenSymbol); c != 0 {
			return c
		}
		return a.AcquiredAt.Compare(b.AcquiredAt)
	})
	data.OpenLots = lo.Map(open, func(l model.TaxLot, _ int) LotRow {
		unit := l.UnitCost()
		return LotRow{
			Acquired:  l.AcquiredAt,
			Token:     l.TokenSymbol,
			Remaining: l.RemainingQuantity,
			UnitCost:  unit,
			CostBasis: unit.Mul(l.RemainingQuantity),
		}
	})

	return data
}

func acquiredLabel(g model.CapitalGain) string {
	switch len(g.MatchedLots) {
	case 0:
		return "UNKNOWN"
	case 1:
		return g.MatchedLots[0].AcquiredAt.UTC().Format(time.DateOnly)
	default:
		return "VARIOUS"
	}
}

// Values returns the rows of a tab, header first.
func (d TabData) Values(tab string) ([][]any, error) {
	switch tab {
	case TabSummary:
		return d.summaryValues(), nil
	case TabGains:
		rows := [][]any{{"Date Acquired", "Date Sold", "Token", "Term", "Quantity", "Proceeds", "Cost Basis", "Gain/Loss", "Unmatched", "Transaction"}}
		for _, g := range d.Gains {
			rows = append(rows, []any{
				g.DateAcquired, g.DateSold.UTC().Format(time.DateOnly), g.Token, g.Term, g.Quantity.String(),
				money(g.Proceeds), money(g.CostBasis), money(g.GainLoss), g.Unmatched.String(), g.Transaction,
			})
		}
		return rows, nil
	case TabIncome:
		rows := [][]any{{"Date", "Token", "Quantity", "Value (USD)", "Price Missing", "Transaction"}}
		for _, in := range d.Income {
			rows = append(rows, []any{
				in.Date.UTC().Format(time.DateOnly), in.Token, in.Quantity.String(), money(in.ValueUSD), in.PriceMissing, in.Transaction,
			})
		}
		return rows, nil
	case TabTokens:
		rows := [][]any{{"Token", "Disposals", "Proceeds", "Gain/Loss"}}
		for _, tok := range d.Tokens {
			rows = append(rows, []any{tok.TokenSymbol, tok.Disposals, money(tok.Proceeds), money(tok.GainLoss)})
		}
		return rows, nil
	case TabOpenLots:
		rows := [][]any{{"Acquired", "Token", "Remaining", "Unit Cost", "Cost Basis"}}
		for _, l := range d.OpenLots {
			rows = append(rows, []any{
				l.Acquired.UTC().Format(time.DateOnly), l.Token, l.Remaining.String(), money(l.UnitCost), money(l.CostBasis),
			})
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unknown tab %q", tab)
	}
}

func (d TabData) summaryValues() [][]any {
	period := "All years"
	if d.Summary.Year != nil {
		period = fmt.Sprintf("Tax year %d", *d.Summary.Year)
	}

	s := d.Summary
	rows := [][]any{
		{"Crypto Tax Report", period},
		{"Method", string(d.Method)},
		{},
		{"Short-term gain/loss", money(s.ShortTermGainLoss), s.ShortTermCount},
		{"Long-term gain/loss", money(s.LongTermGainLoss), s.LongTermCount},
		{"Total gain/loss", money(s.TotalGainLoss), s.DisposalCount()},
		{"Total proceeds", money(s.TotalProceeds)},
		{"Total cost basis", money(s.TotalCostBasis)},
		{"Income", money(s.TotalIncome), s.IncomeCount},
		{"Unmatched disposals", s.UnmatchedDisposals},
		{"Prices missing", s.PriceMissing},
	}
	if len(d.Warnings) > 0 {
		rows = append(rows, []any{}, []any{"Warnings"})
		for _, w := range d.Warnings {
			rows = append(rows, []any{w})
		}
	}
	return rows
}

// money renders USD amounts as numbers so the sheet can format and sum them.
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
