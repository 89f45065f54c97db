// Package costbasis builds tax lots from acquisitions and matches disposals
// against them under a chosen accounting method.
package costbasis

import (
	"slices"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// IDGenerator produces lot identifiers.
type IDGenerator func() string

// BuildLots opens one lot per acquisition with random UUIDs.
func BuildLots(txs []model.ClassifiedTransaction) []model.TaxLot {
	return BuildLotsWithIDs(txs, uuid.NewString)
}

// BuildLotsWithIDs opens one lot per acquisition, in input order.
// Same-token lots are never merged so each keeps its acquisition date.
func BuildLotsWithIDs(txs []model.ClassifiedTransaction, newID IDGenerator) []model.TaxLot {
	lots := make([]model.TaxLot, 0, len(txs))
	for _, tx := range txs {
		if !tx.Type.IsAcquisition() {
			continue
		}
		lots = append(lots, model.TaxLot{
			ID:                newID(),
			AcquiredAt:        tx.Timestamp,
			CostBasis:         tx.LotCost(),
			Quantity:          tx.Quantity,
			RemainingQuantity: tx.Quantity,
			TokenSymbol:       tx.Symbol(),
			TransactionHash:   tx.Hash,
		})
	}
	return lots
}

// Disposals returns the disposal transactions in chronological order.
// Transactions sharing a timestamp keep their input order.
func Disposals(txs []model.ClassifiedTransaction) []model.ClassifiedTransaction {
	out := lo.Filter(txs, func(tx model.ClassifiedTransaction, _ int) bool {
		return tx.Type.IsDisposal()
	})
	slices.SortStableFunc(out, func(a, b model.ClassifiedTransaction) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// Acquisitions returns the lot-opening transactions in chronological order.
func Acquisitions(txs []model.ClassifiedTransaction) []model.ClassifiedTransaction {
	out := lo.Filter(txs, func(tx model.ClassifiedTransaction, _ int) bool {
		return tx.Type.IsAcquisition()
	})
	slices.SortStableFunc(out, func(a, b model.ClassifiedTransaction) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}
