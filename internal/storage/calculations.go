package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/service"
)

// SaveCalculation records a matching pass and replaces the stored lots and
// gains with its output. Previous run summaries are kept.
func (s *SQLiteStorage) SaveCalculation(ctx context.Context, calc *service.Calculation) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateCalculation(calc); err != nil {
		return 0, err
	}
	if calc.Run.Method == "" {
		calc.Run.Method = model.DefaultMethod
	}
	if calc.Run.RunAt.IsZero() {
		calc.Run.RunAt = time.Now()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"lot_matches", "capital_gains", "tax_lots"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		run := calc.Run
		result, err := tx.ExecContext(ctx, `
			INSERT INTO calculation_runs (method, run_at, acquisitions, disposals, gains, unmatched, open_lots)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(run.Method), run.RunAt.UTC(), run.Acquisitions, run.Disposals, run.Gains, run.Unmatched, run.OpenLots)
		if err != nil {
			return fmt.Errorf("failed to save calculation run: %w", err)
		}
		runID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get calculation run ID: %w", err)
		}
		calc.Run.ID = runID

		if err := insertLots(ctx, tx, runID, calc.Lots); err != nil {
			return err
		}
		return insertGains(ctx, tx, runID, calc.Gains)
	})
	if err != nil {
		return 0, err
	}
	return calc.Run.ID, nil
}

func insertLots(ctx context.Context, tx *sql.Tx, runID int64, lots []model.TaxLot) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tax_lots (id, run_id, transaction_hash, token_symbol, acquired_at, quantity, remaining_quantity, cost_basis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare lot statement: %w", err)
	}
	defer stmt.Close()

	for _, lot := range lots {
		if _, err := stmt.ExecContext(ctx,
			lot.ID, runID, lot.TransactionHash, lot.TokenSymbol, lot.AcquiredAt.UTC(),
			lot.Quantity, lot.RemainingQuantity, lot.CostBasis,
		); err != nil {
			return fmt.Errorf("failed to save lot %s: %w", lot.ID, err)
		}
	}
	return nil
}

func insertGains(ctx context.Context, tx *sql.Tx, runID int64, gains []model.CapitalGain) error {
	gainStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO capital_gains (
			run_id, transaction_hash, token_symbol, method, disposed_at,
			quantity, proceeds, cost_basis, gain_loss, unmatched_quantity, short_term
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare gain statement: %w", err)
	}
	defer gainStmt.Close()

	matchStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lot_matches (gain_id, seq, lot_id, acquired_at, quantity, cost_basis)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare match statement: %w", err)
	}
	defer matchStmt.Close()

	for _, g := range gains {
		result, err := gainStmt.ExecContext(ctx,
			runID, g.TransactionHash, g.TokenSymbol, string(g.Method), g.DisposedAt.UTC(),
			g.Quantity, g.Proceeds, g.CostBasis, g.GainLoss, g.UnmatchedQuantity, g.ShortTerm,
		)
		if err != nil {
			return fmt.Errorf("failed to save gain for %s: %w", g.TransactionHash, err)
		}
		gainID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get gain ID: %w", err)
		}
		for seq, m := range g.MatchedLots {
			if _, err := matchStmt.ExecContext(ctx,
				gainID, seq, m.LotID, m.AcquiredAt.UTC(), m.Quantity, m.CostBasis,
			); err != nil {
				return fmt.Errorf("failed to save lot match for %s: %w", g.TransactionHash, err)
			}
		}
	}
	return nil
}

// GetLatestCalculation returns the most recent run, or common.ErrNotFound.
func (s *SQLiteStorage) GetLatestCalculation(ctx context.Context) (*model.CalculationRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var run model.CalculationRun
	err := s.db.QueryRowContext(ctx, `
		SELECT id, method, run_at, acquisitions, disposals, gains, unmatched, open_lots
		FROM calculation_runs
		ORDER BY id DESC
		LIMIT 1`).Scan(
		&run.ID, &run.Method, &run.RunAt, &run.Acquisitions, &run.Disposals, &run.Gains, &run.Unmatched, &run.OpenLots)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no calculation has been run", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest calculation: %w", err)
	}
	return &run, nil
}

// GetTaxLots returns the lots of the latest calculation ordered by acquisition.
func (s *SQLiteStorage) GetTaxLots(ctx context.Context, filter service.LotFilter) ([]model.TaxLot, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, transaction_hash, token_symbol, acquired_at, quantity, remaining_quantity, cost_basis FROM tax_lots`
	var args []any
	if filter.TokenSymbol != "" {
		query += " WHERE UPPER(token_symbol) = UPPER(?)"
		args = append(args, filter.TokenSymbol)
	}
	query += " ORDER BY acquired_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tax lots: %w", err)
	}
	defer rows.Close()

	var out []model.TaxLot
	for rows.Next() {
		var lot model.TaxLot
		if err := rows.Scan(&lot.ID, &lot.TransactionHash, &lot.TokenSymbol, &lot.AcquiredAt,
			&lot.Quantity, &lot.RemainingQuantity, &lot.CostBasis); err != nil {
			return nil, fmt.Errorf("failed to scan tax lot: %w", err)
		}
		// Quantities are text, so openness is decided here rather than in SQL.
		if filter.OpenOnly && !lot.IsOpen() {
			continue
		}
		out = append(out, lot)
	}
	return out, rows.Err()
}

// GetCapitalGains returns the gains of the latest calculation ordered by disposal.
func (s *SQLiteStorage) GetCapitalGains(ctx context.Context, filter service.GainFilter) ([]model.CapitalGain, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		clauses []string
		args    []any
	)
	if filter.Year != nil {
		start := time.Date(*filter.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		clauses = append(clauses, "g.disposed_at >= ? AND g.disposed_at < ?")
		args = append(args, start, start.AddDate(1, 0, 0))
	}
	if filter.TokenSymbol != "" {
		clauses = append(clauses, "UPPER(g.token_symbol) = UPPER(?)")
		args = append(args, filter.TokenSymbol)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.transaction_hash, g.token_symbol, g.method, g.disposed_at,
			g.quantity, g.proceeds, g.cost_basis, g.gain_loss, g.unmatched_quantity, g.short_term
		FROM capital_gains g`+where+`
		ORDER BY g.disposed_at, g.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query capital gains: %w", err)
	}

	var (
		out   []model.CapitalGain
		index = make(map[int64]int)
	)
	for rows.Next() {
		var (
			g  model.CapitalGain
			id int64
		)
		if err := rows.Scan(&id, &g.TransactionHash, &g.TokenSymbol, &g.Method, &g.DisposedAt,
			&g.Quantity, &g.Proceeds, &g.CostBasis, &g.GainLoss, &g.UnmatchedQuantity, &g.ShortTerm); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan capital gain: %w", err)
		}
		index[id] = len(out)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(out) == 0 {
		return out, nil
	}
	if err := s.attachMatches(ctx, out, index); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStorage) attachMatches(ctx context.Context, gains []model.CapitalGain, index map[int64]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gain_id, lot_id, acquired_at, quantity, cost_basis
		FROM lot_matches
		ORDER BY gain_id, seq`)
	if err != nil {
		return fmt.Errorf("failed to query lot matches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			gainID int64
			m      model.LotMatch
		)
		if err := rows.Scan(&gainID, &m.LotID, &m.AcquiredAt, &m.Quantity, &m.CostBasis); err != nil {
			return fmt.Errorf("failed to scan lot match: %w", err)
		}
		if i, ok := index[gainID]; ok {
			gains[i].MatchedLots = append(gains[i].MatchedLots, m)
		}
	}
	return rows.Err()
}
