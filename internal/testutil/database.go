package testutil

import (
	"path/filepath"
	"testing"

	"flowstate-go/internal/database"
	"flowstate-go/internal/flow"
)

// NewTestDatabase creates a migrated SQLite database in a temporary directory.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) flow.RecordStore {
	t.Helper()

	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "flowstate.db"))
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
