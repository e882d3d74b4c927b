package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n == 1
}

func TestMigrator_UpDown(t *testing.T) {
	db := openDB(t)
	m, err := NewMigrator(db)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Up(); err != nil {
		t.Fatalf("up: %v", err)
	}
	if !tableExists(t, db, "runs") || !tableExists(t, db, "results") {
		t.Fatal("tables missing after up")
	}
	v, dirty, err := m.Version()
	if err != nil || dirty || v != 1 {
		t.Errorf("version = %d dirty=%v err=%v", v, dirty, err)
	}

	// second up is a no-op
	if err := m.Up(); err != nil {
		t.Fatalf("repeat up: %v", err)
	}

	if err := m.Down(); err != nil {
		t.Fatalf("down: %v", err)
	}
	if tableExists(t, db, "runs") {
		t.Error("runs table should be dropped")
	}
}

func TestNewMigrator_NilDB(t *testing.T) {
	if _, err := NewMigrator(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}
