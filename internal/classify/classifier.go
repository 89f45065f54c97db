package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent price lookups.
const DefaultWorkers = 4

// ErrInvalidValue is reported for transfer values that are not unsigned integers.
var ErrInvalidValue = errors.New("invalid transfer value")

// Options configures a Classifier.
type Options struct {
	Strategy Strategy
	// Progress is called after each transaction is valued.
	Progress func(done, total int)
	Workers  int
}

// Result is the output of a classification batch.
type Result struct {
	ByType        map[model.TransactionType]int
	Transactions  []model.ClassifiedTransaction
	Warnings      []string
	Taxable       int
	Priced        int
	PriceFailures int
}

// Classifier turns raw transfers into classified, USD-valued transactions.
type Classifier struct {
	prices   service.PriceSource
	strategy Strategy
	progress func(done, total int)
	workers  int
}

// New creates a classifier backed by the given price source.
func New(prices service.PriceSource, opts Options) *Classifier {
	if opts.Strategy == nil {
		opts.Strategy = DirectionalStrategy{}
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Classifier{
		prices:   prices,
		strategy: opts.Strategy,
		progress: opts.Progress,
		workers:  opts.Workers,
	}
}

// Classify produces one classified transaction per input, in input order.
// A failed price lookup values the transaction at zero and adds a warning;
// only context cancellation aborts the batch.
func (c *Classifier) Classify(ctx context.Context, raw []model.RawTransaction, owned []string) (*Result, error) {
	ownedSet := NewAddressSet(owned...)
	out := make([]model.ClassifiedTransaction, len(raw))
	warnings := make([][]string, len(raw))

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i := range raw {
		g.Go(func() error {
			tx, warns, err := c.classifyOne(gctx, raw[i], ownedSet)
			if err != nil {
				return err
			}
			out[i] = tx
			warnings[i] = warns

			if c.progress != nil {
				mu.Lock()
				done++
				c.progress(done, len(raw))
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Transactions: out,
		ByType:       make(map[model.TransactionType]int),
	}
	for i, tx := range out {
		result.ByType[tx.Type]++
		if tx.Taxable {
			result.Taxable++
		}
		if tx.PriceMissing {
			result.PriceFailures++
		} else if tx.Quantity.IsPositive() {
			result.Priced++
		}
		result.Warnings = append(result.Warnings, warnings[i]...)
	}

	slog.Debug("Classified transactions",
		"total", len(out),
		"taxable", result.Taxable,
		"priced", result.Priced,
		"price_failures", result.PriceFailures)

	return result, nil
}

func (c *Classifier) classifyOne(ctx context.Context, raw model.RawTransaction, owned AddressSet) (model.ClassifiedTransaction, []string, error) {
	var warnings []string

	typ := c.strategy.Classify(raw, owned)
	if typ == model.TypeUnknown {
		warnings = append(warnings, fmt.Sprintf("transaction %s does not involve an owned address; classified as UNKNOWN", raw.Hash))
	}

	tx := model.ClassifiedTransaction{
		RawTransaction: raw,
		Type:           typ,
		Taxable:        typ.IsTaxable(),
	}

	qty, err := ToQuantity(raw.Value, raw.Decimals())
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("transaction %s: %v; quantity set to 0", raw.Hash, err))
	}
	tx.Quantity = qty

	if qty.IsPositive() {
		price, err := c.prices.Price(ctx, service.PriceQuery{
			Symbol:       raw.Symbol(),
			TokenAddress: raw.TokenAddress,
			Chain:        raw.Chain,
			At:           raw.Timestamp,
		})
		switch {
		case err != nil && ctx.Err() != nil:
			return tx, nil, ctx.Err()
		case err != nil:
			tx.PriceMissing = true
			warnings = append(warnings, fmt.Sprintf("price unavailable for %s at %s (transaction %s): %v; fair market value set to 0",
				raw.Symbol(), raw.Timestamp.UTC().Format("2006-01-02"), raw.Hash, err))
		default:
			tx.FairMarketValueUSD = qty.Mul(price)
		}
	}

	if typ.HasCostBasis() {
		basis := tx.FairMarketValueUSD
		tx.CostBasisUSD = &basis
	}

	return tx, warnings, nil
}

var integerPattern = regexp.MustCompile(`^[0-9]+$`)

// ToQuantity scales an integer amount in the smallest unit to whole tokens.
func ToQuantity(value string, decimals int) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	if !integerPattern.MatchString(value) {
		return decimal.Zero, fmt.Errorf("%w %q", ErrInvalidValue, value)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w %q", ErrInvalidValue, value)
	}
	return d.Shift(int32(-decimals)), nil
}
