// Package transfers builds raw on-chain transfers for tests.
//
// Example usage:
//
//	txs := transfers.NewBuilder(t).
//		Receive("ETH", "2", transfers.Day(0)).
//		Send("ETH", "1.5", transfers.Day(400)).
//		Build()
package transfers

import (
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/shopspring/decimal"
)

// Test addresses.
const (
	Owner        = "0x1111111111111111111111111111111111111111"
	Counterparty = "0x2222222222222222222222222222222222222222"
	Router       = "0x3333333333333333333333333333333333333333"
	Rewards      = "0x4444444444444444444444444444444444444444"
)

// Epoch is the timestamp of Day(0).
var Epoch = time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)

// Day returns Epoch plus n days.
func Day(n int) time.Time {
	return Epoch.AddDate(0, 0, n)
}

// Builder accumulates transfers. Hashes are assigned sequentially.
type Builder struct {
	t     *testing.T
	chain model.Chain
	txs   []model.RawTransaction
}

// NewBuilder starts an Ethereum mainnet builder.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t, chain: model.ChainEthereum}
}

// OnChain switches the chain for subsequent transfers.
func (b *Builder) OnChain(chain model.Chain) *Builder {
	b.chain = chain
	return b
}

// Receive adds a transfer of amount whole units from Counterparty to Owner.
func (b *Builder) Receive(symbol, amount string, at time.Time) *Builder {
	return b.Transfer(Counterparty, Owner, symbol, amount, at)
}

// Send adds a transfer of amount whole units from Owner to Counterparty.
func (b *Builder) Send(symbol, amount string, at time.Time) *Builder {
	return b.Transfer(Owner, Counterparty, symbol, amount, at)
}

// Transfer adds an 18-decimal transfer between arbitrary addresses.
func (b *Builder) Transfer(from, to, symbol, amount string, at time.Time) *Builder {
	b.t.Helper()
	qty, err := decimal.NewFromString(amount)
	if err != nil {
		b.t.Fatalf("invalid amount %q: %v", amount, err)
	}

	tx := model.RawTransaction{
		Hash:        fmt.Sprintf("0x%064x", len(b.txs)+1),
		Chain:       b.chain,
		Timestamp:   at,
		From:        from,
		To:          to,
		Value:       qty.Shift(model.NativeDecimals).Truncate(0).String(),
		TokenSymbol: symbol,
		BlockNumber: uint64(1000 + len(b.txs)),
	}
	if info, ok := b.chain.Info(); ok && symbol != info.NativeSymbol {
		tx.ID = tx.Hash + ":0"
		tx.TokenAddress = fmt.Sprintf("0x%040x", len(symbol))
		tx.TokenDecimals = model.NativeDecimals
	}
	b.txs = append(b.txs, tx)
	return b
}

// Build returns the accumulated transfers.
func (b *Builder) Build() []model.RawTransaction {
	return append([]model.RawTransaction(nil), b.txs...)
}
