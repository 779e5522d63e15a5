package testutil

import (
	"path/filepath"
	"testing"

	"taxpadi-client/internal/db"
)

// NewTestDB opens a migrated database in a temp dir, closed when the test ends
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "taxpadi.db"))
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("migration failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}
