package costbasis

import (
	"fmt"
	"slices"
	"time"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/shopspring/decimal"
)

// ShortTermThreshold is the longest holding period still taxed as short-term.
const ShortTermThreshold = 365 * 24 * time.Hour

// MatchResult is the output of a matching pass.
type MatchResult struct {
	Gains    []model.CapitalGain
	Lots     []model.TaxLot
	Warnings []string
}

// MatchDisposals realizes one capital gain per disposal, in input order,
// consuming lots of the same token in the order the method prescribes.
// The given lots are not modified; the updated inventory is returned in
// MatchResult.Lots in the same order as the input.
func MatchDisposals(disposals []model.ClassifiedTransaction, lots []model.TaxLot, method model.AccountingMethod) (*MatchResult, error) {
	method, err := model.ParseAccountingMethod(string(method))
	if err != nil {
		return nil, err
	}

	inventory := slices.Clone(lots)
	if err := checkLots(inventory); err != nil {
		return nil, err
	}

	queues := orderedQueues(inventory, method)

	result := &MatchResult{
		Gains: make([]model.CapitalGain, 0, len(disposals)),
		Lots:  inventory,
	}

	for _, disposal := range disposals {
		gain := matchOne(disposal, inventory, queues[disposal.Symbol()], method)
		if gain.IsUnderCollateralized() {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"disposal %s of %s %s exceeded available lots by %s; unmatched quantity carries zero cost basis",
				disposal.Hash, disposal.Quantity, gain.TokenSymbol, gain.UnmatchedQuantity))
		}
		result.Gains = append(result.Gains, gain)
	}

	return result, nil
}

func matchOne(disposal model.ClassifiedTransaction, inventory []model.TaxLot, queue []int, method model.AccountingMethod) model.CapitalGain {
	gain := model.CapitalGain{
		TransactionHash: disposal.Hash,
		DisposedAt:      disposal.Timestamp,
		TokenSymbol:     disposal.Symbol(),
		Quantity:        disposal.Quantity,
		Proceeds:        disposal.FairMarketValueUSD,
		Method:          method,
	}

	outstanding := disposal.Quantity
	oldest := disposal.Timestamp
	matched := false

	for _, idx := range queue {
		if !outstanding.IsPositive() {
			break
		}
		lot := &inventory[idx]
		if !lot.IsOpen() {
			continue
		}

		take := decimal.Min(outstanding, lot.RemainingQuantity)
		basis := lot.CostBasis.Mul(take).Div(lot.Quantity)

		gain.MatchedLots = append(gain.MatchedLots, model.LotMatch{
			LotID:      lot.ID,
			AcquiredAt: lot.AcquiredAt,
			Quantity:   take,
			CostBasis:  basis,
		})
		gain.CostBasis = gain.CostBasis.Add(basis)

		lot.RemainingQuantity = lot.RemainingQuantity.Sub(take)
		outstanding = outstanding.Sub(take)

		if !matched || lot.AcquiredAt.Before(oldest) {
			oldest = lot.AcquiredAt
			matched = true
		}
	}

	if outstanding.IsPositive() {
		gain.UnmatchedQuantity = outstanding
	}
	gain.GainLoss = gain.Proceeds.Sub(gain.CostBasis)
	gain.ShortTerm = IsShortTerm(oldest, disposal.Timestamp)

	return gain
}

// IsShortTerm reports whether an asset acquired at acquired and disposed
// of at disposed was held for at most one year.
func IsShortTerm(acquired, disposed time.Time) bool {
	return disposed.Sub(acquired) <= ShortTermThreshold
}

// orderedQueues groups lot indices by token and sorts each group once.
// Sorting is stable so equal keys keep their input order.
func orderedQueues(lots []model.TaxLot, method model.AccountingMethod) map[string][]int {
	queues := make(map[string][]int)
	for i, lot := range lots {
		queues[lot.Symbol()] = append(queues[lot.Symbol()], i)
	}

	for _, queue := range queues {
		slices.SortStableFunc(queue, func(a, b int) int {
			return compareLots(lots[a], lots[b], method)
		})
	}

	return queues
}

func compareLots(a, b model.TaxLot, method model.AccountingMethod) int {
	switch method {
	case model.MethodLIFO:
		return b.AcquiredAt.Compare(a.AcquiredAt)
	case model.MethodHIFO:
		return b.UnitCost().Cmp(a.UnitCost())
	default:
		return a.AcquiredAt.Compare(b.AcquiredAt)
	}
}

// checkLots rejects inventories that could only come from corrupted state.
func checkLots(lots []model.TaxLot) error {
	for _, lot := range lots {
		switch {
		case lot.Quantity.IsNegative():
			return fmt.Errorf("%w: lot %s has negative quantity %s", common.ErrInvariantViolation, lot.ID, lot.Quantity)
		case lot.RemainingQuantity.IsNegative():
			return fmt.Errorf("%w: lot %s has negative remaining quantity %s", common.ErrInvariantViolation, lot.ID, lot.RemainingQuantity)
		case lot.RemainingQuantity.GreaterThan(lot.Quantity):
			return fmt.Errorf("%w: lot %s has remaining %s above quantity %s", common.ErrInvariantViolation, lot.ID, lot.RemainingQuantity, lot.Quantity)
		}
	}
	return nil
}
