package database

import (
	"fmt"
	"os"
	"path/filepath"

	"flowstate-go/internal/config"
)

// NewRecordStoreFromConfig creates a record store based on the database config type.
func NewRecordStoreFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case config.DatabaseSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewSQLiteDatabase(cfg.Path)
	case config.DatabaseMemory:
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
