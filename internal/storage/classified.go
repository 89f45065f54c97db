package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/shopspring/decimal"
)

// ReplaceClassifiedTransactions swaps the stored classification for a new one.
// Every transaction must refer to a stored raw transfer.
func (s *SQLiteStorage) ReplaceClassifiedTransactions(ctx context.Context, transactions []model.ClassifiedTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	for i := range transactions {
		if err := validateClassified(&transactions[i]); err != nil {
			return fmt.Errorf("classified transaction at index %d: %w", i, err)
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM classified_transactions"); err != nil {
			return fmt.Errorf("failed to clear classifications: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO classified_transactions (
				transaction_id, type, quantity, fair_market_value_usd, cost_basis_usd, taxable, price_missing
			) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, t := range transactions {
			basis := decimal.NullDecimal{}
			if t.CostBasisUSD != nil {
				basis = decimal.NewNullDecimal(*t.CostBasisUSD)
			}
			if _, err := stmt.ExecContext(ctx,
				t.Key(), string(t.Type), t.Quantity, t.FairMarketValueUSD, basis, t.Taxable, t.PriceMissing,
			); err != nil {
				return fmt.Errorf("failed to save classification for %s: %w", t.Key(), err)
			}
		}
		return nil
	})
}

// GetClassifiedTransactions returns classified transfers ordered by timestamp.
func (s *SQLiteStorage) GetClassifiedTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.ClassifiedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	where, args := transactionWhere(filter)
	query := "SELECT " + rawColumns + `, c.type, c.quantity, c.fair_market_value_usd, c.cost_basis_usd, c.taxable, c.price_missing
		FROM classified_transactions c
		JOIN raw_transactions r ON r.id = c.transaction_id` + where + " ORDER BY r.timestamp, r.id" + pageClause(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query classified transactions: %w", err)
	}
	defer rows.Close()

	var out []model.ClassifiedTransaction
	for rows.Next() {
		var (
			t     model.ClassifiedTransaction
			basis decimal.NullDecimal
		)
		targets := append(rawScanTargets(&t.RawTransaction),
			&t.Type, &t.Quantity, &t.FairMarketValueUSD, &basis, &t.Taxable, &t.PriceMissing)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan classified transaction: %w", err)
		}
		if basis.Valid {
			t.CostBasisUSD = &basis.Decimal
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
