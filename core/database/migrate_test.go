package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"
)

func sqliteConfig(t *testing.T) Config {
	t.Helper()
	return Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "bot.db")}
}

func TestRunMigrationsSQLite(t *testing.T) {
	cfg := sqliteConfig(t)
	source := fstest.MapFS{
		"sqlite/0001_notes.up.sql":   {Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL);")},
		"sqlite/0001_notes.down.sql": {Data: []byte("DROP TABLE notes;")},
	}

	if err := RunMigrations(cfg, source); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// A second run is a no-op.
	if err := RunMigrations(cfg, source); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(`INSERT INTO notes (body) VALUES (?)`, "hello"); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM notes`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{Host: "db", Name: "bot"}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Driver != DriverPostgres || cfg.Port != "5432" || cfg.SSLMode != "disable" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	bad := Config{Driver: DriverSQLite}
	if err := bad.Normalize(); err == nil {
		t.Fatal("expected error for sqlite without path")
	}
	unknown := Config{Driver: "mysql"}
	if err := unknown.Normalize(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"0001_init.up.sql", "0002_roles.up.sql", "0003_idx.up.sql"}
	got := selectApplied(files, 1, 3)
	if len(got) != 2 || got[0] != "0002_roles.up.sql" || got[1] != "0003_idx.up.sql" {
		t.Fatalf("selectApplied = %v", got)
	}
	if got := selectApplied(files, 3, 3); got != nil {
		t.Fatalf("expected nil when nothing applied, got %v", got)
	}
}
