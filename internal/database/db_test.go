package database

import (
	"path/filepath"
	"testing"
)

func TestNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer db.Close()

	for _, table := range []string{"run_store", "saved_plans", "active_plans", "shopping_lists", "execution_metrics"} {
		var name string
		err := db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist, got %v", table, err)
		}
	}

	// Re-running migrations on an up-to-date schema is a no-op.
	if err := RunMigrations(dbPath); err != nil {
		t.Errorf("Expected second migration run to succeed, got %v", err)
	}
}
