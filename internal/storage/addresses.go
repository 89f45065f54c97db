package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/model"
)

// AddOwnedAddress registers a wallet as belonging to the user.
func (s *SQLiteStorage) AddOwnedAddress(ctx context.Context, address *model.OwnedAddress) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if address == nil {
		return fmt.Errorf("%w: address", ErrNilParameter)
	}
	normalized, err := common.NormalizeAddress(address.Address)
	if err != nil {
		return err
	}
	if address.AddedAt.IsZero() {
		address.AddedAt = time.Now()
	}
	address.Address = normalized

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO owned_addresses (address, label, chain, added_at)
		VALUES (?, ?, ?, ?)`,
		address.Address, address.Label, string(address.Chain), address.AddedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to add address: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: address %s", common.ErrDuplicateEntry, address.Address)
	}
	return nil
}

// RemoveOwnedAddress deletes a registered wallet.
func (s *SQLiteStorage) RemoveOwnedAddress(ctx context.Context, address string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(address, "address"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM owned_addresses WHERE address = ?", strings.ToLower(strings.TrimSpace(address)))
	if err != nil {
		return fmt.Errorf("failed to remove address: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: address %s", common.ErrNotFound, address)
	}
	return nil
}

// GetOwnedAddresses returns all registered wallets in the order they were added.
func (s *SQLiteStorage) GetOwnedAddresses(ctx context.Context) ([]model.OwnedAddress, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT address, label, chain, added_at
		FROM owned_addresses
		ORDER BY added_at, address`)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()

	var out []model.OwnedAddress
	for rows.Next() {
		var a model.OwnedAddress
		if err := rows.Scan(&a.Address, &a.Label, &a.Chain, &a.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
