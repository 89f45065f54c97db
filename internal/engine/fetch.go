package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
)

// FetchResult reports an explorer import.
type FetchResult struct {
	Result
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
}

// Fetch imports the transfers of an address and registers it as owned.
// Transfers already stored are skipped.
func (e *Engine) Fetch(ctx context.Context, req service.FetchRequest, label string) (*FetchResult, error) {
	if e.source == nil {
		return nil, fmt.Errorf("%w: no transaction source configured", common.ErrMissingConfig)
	}

	address, err := common.NormalizeAddress(req.Address)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("%q is not a valid address", req.Address), err)
	}
	req.Address = address

	owned := &model.OwnedAddress{Address: address, Label: label, Chain: req.Chain}
	if err := e.storage.AddOwnedAddress(ctx, owned); err != nil && !errors.Is(err, common.ErrDuplicateEntry) {
		return nil, fmt.Errorf("failed to register address: %w", err)
	}

	txs, err := e.source.FetchTransactions(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	inserted, err := e.storage.SaveRawTransactions(ctx, txs)
	if err != nil {
		return nil, fmt.Errorf("failed to save transactions: %w", err)
	}

	slog.Info("Fetched transactions",
		"address", address,
		"chain", req.Chain,
		"fetched", len(txs),
		"inserted", inserted)

	result := &FetchResult{
		Result:   success("Fetched %d transactions for %s on %s (%d new)", len(txs), address, req.Chain, inserted),
		Fetched:  len(txs),
		Inserted: inserted,
	}
	if len(txs) == 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("no transactions found for %s on %s", address, req.Chain))
	}
	return result, nil
}
