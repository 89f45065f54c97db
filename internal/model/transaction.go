package model

import (
	"fmt"
	"strings"
	"time"
)

// NativeDecimals is the unit precision of native chain currencies.
const NativeDecimals = 18

// Chain identifies an EVM network supported by the explorer client.
type Chain string

// Supported chains.
const (
	ChainEthereum Chain = "ethereum"
	ChainBase     Chain = "base"
	ChainFraxtal  Chain = "fraxtal"
)

// ChainInfo describes the explorer parameters of a chain.
type ChainInfo struct {
	NativeSymbol string
	ChainID      int
}

var chains = map[Chain]ChainInfo{
	ChainEthereum: {ChainID: 1, NativeSymbol: "ETH"},
	ChainBase:     {ChainID: 8453, NativeSymbol: "ETH"},
	ChainFraxtal:  {ChainID: 252, NativeSymbol: "FRAX"},
}

// ParseChain validates a chain name.
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := chains[c]; !ok {
		return "", fmt.Errorf("unsupported chain %q", s)
	}
	return c, nil
}

// Info returns the explorer parameters for the chain.
func (c Chain) Info() (ChainInfo, bool) {
	info, ok := chains[c]
	return info, ok
}

// RawTransaction is an on-chain transfer as reported by the explorer.
// Value is an unsigned integer in the token's smallest unit.
type RawTransaction struct {
	Timestamp     time.Time
	ID            string
	Hash          string
	Chain         Chain
	From          string
	To            string
	Value         string
	TokenSymbol   string
	TokenAddress  string
	GasUsed       string
	GasPrice      string
	BlockNumber   uint64
	TokenDecimals int
}

// Key identifies the transfer. Token transfers set ID because one
// transaction hash can carry several of them.
func (t RawTransaction) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Hash
}

// Decimals returns the unit precision of the transferred asset.
func (t RawTransaction) Decimals() int {
	if t.TokenDecimals > 0 {
		return t.TokenDecimals
	}
	return NativeDecimals
}

// Symbol returns the token symbol, or UNKNOWN when the explorer had none.
func (t RawTransaction) Symbol() string {
	if t.TokenSymbol == "" {
		return UnknownSymbol
	}
	return t.TokenSymbol
}

// UnknownSymbol is used for transfers without a token symbol.
const UnknownSymbol = "UNKNOWN"
