package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Format selects a report layout.
type Format string

// Supported report formats.
const (
	FormatSummary Format = "summary"
	FormatCSV     Format = "csv"
	Format8949    Format = "8949"
	FormatJSON    Format = "json"
)

// ParseFormat parses a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatSummary, nil
	case FormatSummary, FormatCSV, Format8949, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want summary, csv, 8949 or json)", s)
	}
}

// Document is everything a rendered report draws from.
type Document struct {
	Method   model.AccountingMethod `json:"method,omitempty"`
	Gains    []model.CapitalGain    `json:"gains"`
	Tokens   []TokenTotal           `json:"tokens"`
	Warnings []string               `json:"warnings,omitempty"`
	Summary  Summary                `json:"summary"`
}

// NewDocument aggregates gains and transactions into a report document.
func NewDocument(gains []model.CapitalGain, txs []model.ClassifiedTransaction, year *int, method model.AccountingMethod) Document {
	filtered := FilterGains(gains, year)
	summary := Aggregate(gains, txs, year)
	return Document{
		Method:   method,
		Gains:    filtered,
		Tokens:   ByToken(filtered),
		Summary:  summary,
		Warnings: Warnings(summary),
	}
}

// Warnings discloses the degraded inputs behind a summary's totals.
func Warnings(s Summary) []string {
	var warnings []string
	if s.UnmatchedDisposals > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"%d disposals exceeded tracked lots; the unmatched quantity was given a zero cost basis", s.UnmatchedDisposals))
	}
	if s.PriceMissing > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"%d transactions have no USD price and are valued at zero", s.PriceMissing))
	}
	return warnings
}

// Render writes doc to w in the requested format.
func Render(w io.Writer, format Format, doc Document) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, doc.Gains)
	case Format8949:
		return WriteForm8949(w, doc.Gains)
	case FormatJSON:
		return WriteJSON(w, doc)
	default:
		return WriteSummary(w, doc)
	}
}

// CSVHeader is the column layout of the CSV export.
var CSVHeader = []string{
	"Transaction Hash", "Date Sold", "Token", "Quantity", "Proceeds",
	"Cost Basis", "Gain/Loss", "Term", "Method",
}

// WriteCSV writes one row per capital gain.
func WriteCSV(w io.Writer, gains []model.CapitalGain) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, g := range gains {
		row := []string{
			g.TransactionHash,
			g.DisposedAt.UTC().Format("2006-01-02"),
			g.TokenSymbol,
			g.Quantity.String(),
			usd(g.Proceeds),
			usd(g.CostBasis),
			usd(g.GainLoss),
			g.Term(),
			string(g.Method),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteForm8949 writes gains in the two-part layout of IRS Form 8949.
func WriteForm8949(w io.Writer, gains []model.CapitalGain) error {
	short := lo.Filter(gains, func(g model.CapitalGain, _ int) bool { return g.ShortTerm })
	long := lo.Filter(gains, func(g model.CapitalGain, _ int) bool { return !g.ShortTerm })

	fmt.Fprintln(w, "FORM 8949 - Sales and Other Dispositions of Capital Assets")
	fmt.Fprintln(w)
	if err := write8949Part(w, "Part I - Short-Term (held one year or less)", short); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return write8949Part(w, "Part II - Long-Term (held more than one year)", long)
}

func write8949Part(w io.Writer, title string, gains []model.CapitalGain) error {
	fmt.Fprintln(w, title)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "(a) Description\t(b) Acquired\t(c) Sold\t(d) Proceeds\t(e) Cost Basis\t(h) Gain/Loss\t")

	var proceeds, basis, total decimal.Decimal
	for _, g := range gains {
		fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\t%s\t%s\t\n",
			g.Quantity.String(), g.TokenSymbol,
			dateAcquired(g),
			g.DisposedAt.UTC().Format("01/02/2006"),
			usd(g.Proceeds), usd(g.CostBasis), usd(g.GainLoss))
		proceeds = proceeds.Add(g.Proceeds)
		basis = basis.Add(g.CostBasis)
		total = total.Add(g.GainLoss)
	}
	fmt.Fprintf(tw, "Totals\t\t\t%s\t%s\t%s\t\n", usd(proceeds), usd(basis), usd(total))

	return tw.Flush()
}

// dateAcquired follows the form convention of VARIOUS for multi-lot sales.
func dateAcquired(g model.CapitalGain) string {
	switch len(g.MatchedLots) {
	case 0:
		return "UNKNOWN"
	case 1:
		return g.MatchedLots[0].AcquiredAt.UTC().Format("01/02/2006")
	default:
		return "VARIOUS"
	}
}

// WriteSummary writes a plain-text overview of the report.
func WriteSummary(w io.Writer, doc Document) error {
	s := doc.Summary
	title := "Crypto Tax Summary (all years)"
	if s.Year != nil {
		title = fmt.Sprintf("Crypto Tax Summary %d", *s.Year)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, title)
	if doc.Method != "" {
		fmt.Fprintf(tw, "Accounting method:\t%s\n", doc.Method)
	}
	fmt.Fprintf(tw, "Short-term gain/loss:\t%s\t(%d disposals)\n", usd(s.ShortTermGainLoss), s.ShortTermCount)
	fmt.Fprintf(tw, "Long-term gain/loss:\t%s\t(%d disposals)\n", usd(s.LongTermGainLoss), s.LongTermCount)
	fmt.Fprintf(tw, "Total gain/loss:\t%s\n", usd(s.TotalGainLoss))
	fmt.Fprintf(tw, "Total proceeds:\t%s\n", usd(s.TotalProceeds))
	fmt.Fprintf(tw, "Total cost basis:\t%s\n", usd(s.TotalCostBasis))
	fmt.Fprintf(tw, "Income:\t%s\t(%d events)\n", usd(s.TotalIncome), s.IncomeCount)

	if len(doc.Tokens) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Token\tDisposals\tProceeds\tGain/Loss")
		for _, t := range doc.Tokens {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", t.TokenSymbol, t.Disposals, usd(t.Proceeds), usd(t.GainLoss))
		}
	}

	if len(doc.Warnings) > 0 {
		fmt.Fprintln(tw)
	}
	for _, warning := range doc.Warnings {
		fmt.Fprintf(tw, "Warning:\t%s\n", warning)
	}

	return tw.Flush()
}

// WriteJSON writes the document as indented JSON.
func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func usd(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}
