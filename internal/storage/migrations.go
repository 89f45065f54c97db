package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Amounts are stored as decimal strings so no precision is lost.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Raw transfers and owned addresses",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS raw_transactions (
					id TEXT PRIMARY KEY,
					hash TEXT NOT NULL,
					chain TEXT NOT NULL,
					block_number INTEGER NOT NULL DEFAULT 0,
					timestamp DATETIME NOT NULL,
					from_address TEXT NOT NULL DEFAULT '',
					to_address TEXT NOT NULL DEFAULT '',
					value TEXT NOT NULL,
					token_symbol TEXT NOT NULL DEFAULT '',
					token_address TEXT NOT NULL DEFAULT '',
					token_decimals INTEGER NOT NULL DEFAULT 0,
					gas_used TEXT NOT NULL DEFAULT '',
					gas_price TEXT NOT NULL DEFAULT '',
					imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_raw_transactions_timestamp ON raw_transactions(timestamp)`,
				`CREATE INDEX idx_raw_transactions_hash ON raw_transactions(hash)`,
				`CREATE INDEX idx_raw_transactions_token ON raw_transactions(token_symbol)`,

				`CREATE TABLE IF NOT EXISTS owned_addresses (
					address TEXT PRIMARY KEY,
					label TEXT NOT NULL DEFAULT '',
					chain TEXT NOT NULL DEFAULT '',
					added_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Classified transactions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS classified_transactions (
					transaction_id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					quantity TEXT NOT NULL,
					fair_market_value_usd TEXT NOT NULL,
					cost_basis_usd TEXT,
					taxable BOOLEAN NOT NULL DEFAULT 0,
					price_missing BOOLEAN NOT NULL DEFAULT 0,
					classified_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (transaction_id) REFERENCES raw_transactions(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_classified_type ON classified_transactions(type)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Calculation runs, tax lots and capital gains",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS calculation_runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					method TEXT NOT NULL,
					run_at DATETIME NOT NULL,
					acquisitions INTEGER NOT NULL DEFAULT 0,
					disposals INTEGER NOT NULL DEFAULT 0,
					gains INTEGER NOT NULL DEFAULT 0,
					unmatched INTEGER NOT NULL DEFAULT 0,
					open_lots INTEGER NOT NULL DEFAULT 0
				)`,

				`CREATE TABLE IF NOT EXISTS tax_lots (
					id TEXT PRIMARY KEY,
					run_id INTEGER NOT NULL,
					transaction_hash TEXT NOT NULL,
					token_symbol TEXT NOT NULL,
					acquired_at DATETIME NOT NULL,
					quantity TEXT NOT NULL,
					remaining_quantity TEXT NOT NULL,
					cost_basis TEXT NOT NULL,
					FOREIGN KEY (run_id) REFERENCES calculation_runs(id)
				)`,
				`CREATE INDEX idx_tax_lots_token ON tax_lots(token_symbol, acquired_at)`,

				`CREATE TABLE IF NOT EXISTS capital_gains (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id INTEGER NOT NULL,
					transaction_hash TEXT NOT NULL,
					token_symbol TEXT NOT NULL,
					method TEXT NOT NULL,
					disposed_at DATETIME NOT NULL,
					quantity TEXT NOT NULL,
					proceeds TEXT NOT NULL,
					cost_basis TEXT NOT NULL,
					gain_loss TEXT NOT NULL,
					unmatched_quantity TEXT NOT NULL DEFAULT '0',
					short_term BOOLEAN NOT NULL,
					FOREIGN KEY (run_id) REFERENCES calculation_runs(id)
				)`,
				`CREATE INDEX idx_capital_gains_disposed ON capital_gains(disposed_at)`,

				`CREATE TABLE IF NOT EXISTS lot_matches (
					gain_id INTEGER NOT NULL,
					seq INTEGER NOT NULL,
					lot_id TEXT NOT NULL,
					acquired_at DATETIME NOT NULL,
					quantity TEXT NOT NULL,
					cost_basis TEXT NOT NULL,
					PRIMARY KEY (gain_id, seq),
					FOREIGN KEY (gain_id) REFERENCES capital_gains(id) ON DELETE CASCADE
				)`,
			)
		},
	},
	{
		Version:     4,
		Description: "Checkpoint metadata",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS checkpoint_metadata (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					description TEXT,
					file_size INTEGER,
					row_counts TEXT,
					schema_version INTEGER,
					is_auto BOOLEAN DEFAULT 0,
					parent_checkpoint TEXT
				)`,
			)
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if upErr := migration.Up(tx); upErr != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
			}
			if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
				return fmt.Errorf("failed to update schema version: %w", execErr)
			}
			return nil
		})
		if err != nil {
			return err
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
