package migrations

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	tables := []string{"attachments", "content_locations", "extractions", "sync_status", "sync_history", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheck(t *testing.T) {
	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)

		if err := Check(db); !errors.Is(err, ErrNeedsMigration) {
			t.Errorf("Check() error = %v, want ErrNeedsMigration", err)
		}
	})

	t.Run("migrated database is current", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() error = %v", err)
		}

		if err := Check(db); err != nil {
			t.Errorf("Check() error = %v", err)
		}
	})
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() error = %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() error = %v", err)
	}
	if err := Check(db); err != nil {
		t.Errorf("Check() after double migration error = %v", err)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v < 1 {
		t.Errorf("LatestVersion() = %d, want >= 1", v)
	}
}

func TestSchema_SyncStatusSingleton(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	_, err := db.Exec(`INSERT INTO sync_status (id, device_name, device_id, created_at, updated_at)
		VALUES (1, 'laptop', 'dev-1', datetime('now'), datetime('now'))`)
	if err != nil {
		t.Fatalf("inserting singleton: %v", err)
	}

	_, err = db.Exec(`INSERT INTO sync_status (id, device_name, device_id, created_at, updated_at)
		VALUES (2, 'desktop', 'dev-2', datetime('now'), datetime('now'))`)
	if err == nil {
		t.Error("expected CHECK violation for a second sync_status row")
	}
}

func TestSchema_ExtractionConfidenceRange(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	_, err := db.Exec(`INSERT INTO attachments (project_id, file_name, file_path, created_at, updated_at)
		VALUES (1, 'a.txt', '/tmp/a.txt', datetime('now'), datetime('now'))`)
	if err != nil {
		t.Fatalf("inserting attachment: %v", err)
	}

	_, err = db.Exec(`INSERT INTO extractions (attachment_id, record_type, record_id, confidence, created_at)
		VALUES (1, 'problem', 1, 1.5, datetime('now'))`)
	if err == nil {
		t.Error("expected CHECK violation for confidence > 1")
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	_, err := db.Exec(`INSERT INTO content_locations (attachment_id, description, location_type, start_location, created_at)
		VALUES (999, 'orphan', 'page', '1', datetime('now'))`)
	if err == nil {
		t.Error("expected foreign key violation, but insert succeeded")
	}
}

// openTestDB opens a file-backed SQLite database with foreign keys enabled.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db")+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
