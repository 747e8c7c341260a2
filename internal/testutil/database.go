// Package testutil provides test fixtures for the spendtag packages: an
// isolated in-memory database and a fluent transaction builder.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/storage"
)

// Common tenant scopes used across tests.
var (
	UserOne = model.Scope{Type: model.TenantUser, ID: "u1"}
	UserTwo = model.Scope{Type: model.TenantUser, ID: "u2"}
	OrgOne  = model.Scope{Type: model.TenantOrganization, ID: "o1"}
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new migrated in-memory database, closed on test cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.Seed(testutil.NewTransactions(testutil.UserOne).
//		Debit("t1", "Coffee shop purchase", "2.50", day).
//		Build())
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// Seed stores transactions or fails the test.
func (db *TestDB) Seed(txns []model.Transaction) {
	db.t.Helper()
	if len(txns) == 0 {
		return
	}
	if err := db.Storage.SaveTransactions(context.Background(), txns); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
}
