// Package testutil provides test utilities for the cointax project.
// It offers isolated in-memory databases seeded through a fluent API.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/cointax/internal/model"
	"github.com/Veraticus/cointax/internal/storage"
	"github.com/Veraticus/cointax/internal/testutil/transfers"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage   *storage.SQLiteStorage
	t         *testing.T
	Transfers []model.RawTransaction
}

// SetupTestDB creates a migrated in-memory database seeded with the given
// transfers. The owner address from the transfers package is registered.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		transfers.NewBuilder(t).
//			Receive("ETH", "2", transfers.Day(0)).
//			Send("ETH", "1", transfers.Day(400)).
//			Build(),
//	)
func SetupTestDB(t *testing.T, txs []model.RawTransaction) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{
		Transfers: txs,
		Owned:     []string{transfers.Owner},
	})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Owned          []string
	Transfers      []model.RawTransaction
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	for _, addr := range opts.Owned {
		if err := store.AddOwnedAddress(ctx, &model.OwnedAddress{Address: addr}); err != nil {
			t.Fatalf("failed to seed owned address %q: %v", addr, err)
		}
	}

	if len(opts.Transfers) > 0 {
		if _, err := store.SaveRawTransactions(ctx, opts.Transfers); err != nil {
			t.Fatalf("failed to seed transfers: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{
		Storage:   store,
		Transfers: opts.Transfers,
		t:         t,
	}
}

// MustCount returns the number of stored raw transfers or fails the test.
func (db *TestDB) MustCount() int {
	db.t.Helper()
	n, err := db.Storage.CountRawTransactions(context.Background())
	if err != nil {
		db.t.Fatalf("failed to count transfers: %v", err)
	}
	return n
}
