package bootstrap

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/cardbot/core/config"
	coredatabase "github.com/m3rciful/cardbot/core/database"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunMigratesAndSeeds(t *testing.T) {
	dbCfg := coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: filepath.Join(t.TempDir(), "bot.db")}
	source := fstest.MapFS{
		"sqlite/0001_kv.up.sql":   {Data: []byte("CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT NOT NULL);")},
		"sqlite/0001_kv.down.sql": {Data: []byte("DROP TABLE kv;")},
	}
	seed := SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		_, err := db.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES ('greeting', 'hi')`)
		return err
	})

	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   dbCfg,
		Migrations: source,
		Seeders:    []Seeder{seed},
		LoggerInit: noLogger,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	t.Cleanup(func() { _ = res.DB.Close() })

	var v string
	if err := res.DB.Get(&v, `SELECT v FROM kv WHERE k = 'greeting'`); err != nil {
		t.Fatalf("seeded row: %v", err)
	}
	if v != "hi" {
		t.Fatalf("v = %q", v)
	}
}

func TestRunStopsOnMigrationError(t *testing.T) {
	want := errors.New("dirty schema")
	connected := false
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Migrations: fstest.MapFS{},
		LoggerInit: noLogger,
		Migrate:    func(coredatabase.Config, fs.FS) error { return want },
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			connected = true
			return nil, nil
		},
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if connected {
		t.Fatal("connected despite failed migrations")
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
