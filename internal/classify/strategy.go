// Package classify assigns tax types and USD valuations to raw transfers.
package classify

import (
	"strings"

	"github.com/Veraticus/cointax/internal/model"
)

// AddressSet is a case-insensitive set of addresses.
type AddressSet map[string]struct{}

// NewAddressSet builds a set from the given addresses, skipping blanks.
func NewAddressSet(addrs ...string) AddressSet {
	set := make(AddressSet, len(addrs))
	for _, a := range addrs {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			set[a] = struct{}{}
		}
	}
	return set
}

// Contains reports whether addr is in the set.
func (s AddressSet) Contains(addr string) bool {
	_, ok := s[strings.ToLower(addr)]
	return ok
}

// Strategy decides the tax type of a transfer relative to the owned addresses.
type Strategy interface {
	Classify(tx model.RawTransaction, owned AddressSet) model.TransactionType
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(tx model.RawTransaction, owned AddressSet) model.TransactionType

// Classify calls f.
func (f StrategyFunc) Classify(tx model.RawTransaction, owned AddressSet) model.TransactionType {
	return f(tx, owned)
}

// DirectionalStrategy classifies purely on which side of the transfer is owned.
// Inbound transfers are conservatively treated as TRANSFER_IN, including
// transfers between two owned wallets.
type DirectionalStrategy struct{}

// Classify implements Strategy.
func (DirectionalStrategy) Classify(tx model.RawTransaction, owned AddressSet) model.TransactionType {
	fromOwned := owned.Contains(tx.From)
	toOwned := owned.Contains(tx.To)

	switch {
	case toOwned:
		return model.TypeTransferIn
	case fromOwned:
		return model.TypeTransferOut
	default:
		return model.TypeUnknown
	}
}

// ContractAwareStrategy refines the directional rule with known counterparties:
// inbound transfers from an income contract (staking, airdrop distributors)
// are INCOME, and outbound transfers to a swap router are SWAP.
type ContractAwareStrategy struct {
	Fallback        Strategy
	IncomeContracts AddressSet
	SwapRouters     AddressSet
}

// Classify implements Strategy.
func (s ContractAwareStrategy) Classify(tx model.RawTransaction, owned AddressSet) model.TransactionType {
	fromOwned := owned.Contains(tx.From)
	toOwned := owned.Contains(tx.To)

	switch {
	case toOwned && !fromOwned && s.IncomeContracts.Contains(tx.From):
		return model.TypeIncome
	case fromOwned && !toOwned && s.SwapRouters.Contains(tx.To):
		return model.TypeSwap
	}

	if s.Fallback != nil {
		return s.Fallback.Classify(tx, owned)
	}
	return DirectionalStrategy{}.Classify(tx, owned)
}
