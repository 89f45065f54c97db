package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
)

const rawColumns = `r.id, r.hash, r.chain, r.block_number, r.timestamp, r.from_address, r.to_address,
	r.value, r.token_symbol, r.token_address, r.token_decimals, r.gas_used, r.gas_price`

// SaveRawTransactions stores transfers, ignoring ones already imported.
// It returns the number of new rows.
func (s *SQLiteStorage) SaveRawTransactions(ctx context.Context, transactions []model.RawTransaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	for i := range transactions {
		if err := validateRawTransaction(&transactions[i]); err != nil {
			return 0, fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	if len(transactions) == 0 {
		return 0, nil
	}

	var inserted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO raw_transactions (
				id, hash, chain, block_number, timestamp, from_address, to_address,
				value, token_symbol, token_address, token_decimals, gas_used, gas_price
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, t := range transactions {
			result, execErr := stmt.ExecContext(ctx,
				t.Key(), t.Hash, string(t.Chain), int64(t.BlockNumber), t.Timestamp.UTC(),
				strings.ToLower(t.From), strings.ToLower(t.To), t.Value,
				t.TokenSymbol, strings.ToLower(t.TokenAddress), t.TokenDecimals,
				t.GasUsed, t.GasPrice,
			)
			if execErr != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", t.Key(), execErr)
			}
			n, _ := result.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetRawTransactions returns stored transfers ordered by timestamp.
func (s *SQLiteStorage) GetRawTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.RawTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	where, args := transactionWhere(filter)
	query := "SELECT " + rawColumns + " FROM raw_transactions r" + where + " ORDER BY r.timestamp, r.id" + pageClause(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []model.RawTransaction
	for rows.Next() {
		var t model.RawTransaction
		if err := rows.Scan(rawScanTargets(&t)...); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountRawTransactions returns the number of stored transfers.
func (s *SQLiteStorage) CountRawTransactions(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM raw_transactions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// rawScanTargets returns Scan destinations matching rawColumns.
func rawScanTargets(t *model.RawTransaction) []any {
	return []any{
		&t.ID, &t.Hash, &t.Chain, (*blockNumber)(&t.BlockNumber), &t.Timestamp,
		&t.From, &t.To, &t.Value, &t.TokenSymbol, &t.TokenAddress, &t.TokenDecimals,
		&t.GasUsed, &t.GasPrice,
	}
}

// blockNumber scans an INTEGER column into a uint64.
type blockNumber uint64

func (b *blockNumber) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		if v < 0 {
			return fmt.Errorf("negative block number %d", v)
		}
		*b = blockNumber(v)
	case nil:
		*b = 0
	default:
		return fmt.Errorf("unexpected block number type %T", src)
	}
	return nil
}

func transactionWhere(filter service.TransactionFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.StartDate != nil {
		clauses = append(clauses, "r.timestamp >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		clauses = append(clauses, "r.timestamp <= ?")
		args = append(args, filter.EndDate.UTC())
	}
	if filter.Chain != "" {
		clauses = append(clauses, "r.chain = ?")
		args = append(args, string(filter.Chain))
	}
	if filter.TokenSymbol != "" {
		clauses = append(clauses, "UPPER(r.token_symbol) = UPPER(?)")
		args = append(args, filter.TokenSymbol)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func pageClause(filter service.TransactionFilter) string {
	if filter.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, max(filter.Offset, 0))
}
