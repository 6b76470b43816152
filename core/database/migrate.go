package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/cardbot/core/logger"
)

const migrateComponent = "db.migrate"

// RunMigrations applies all up migrations found under the driver directory of source
// (for example "postgres/0001_init.up.sql").
func RunMigrations(cfg Config, source fs.FS) error {
	if err := cfg.Normalize(); err != nil {
		return fmt.Errorf("db config: %w", err)
	}
	if source == nil {
		return errors.New("migrations source is nil")
	}
	ctx := logger.Background()
	fail := func(step string, err error) {
		logger.Error(ctx, migrateComponent, step,
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}

	if cfg.Driver == DriverPostgres {
		if err := WaitForPostgres(cfg.MigrateURL(), 30*time.Second); err != nil {
			fail("wait", err)
			return fmt.Errorf("database not ready: %w", err)
		}
	}

	files := listMigrationFiles(source, cfg.Driver)
	logger.Debug(ctx, migrateComponent, "resolve", fileAttrs(files,
		slog.String("path", cfg.Driver),
	)...)

	m, err := newMigrate(cfg, source)
	if err != nil {
		fail("init", err)
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() {
		if closeErr := errors.Join(m.Close()); closeErr != nil {
			logger.Warn(ctx, migrateComponent, "close",
				slog.String("status", "fail"),
				slog.String("err", closeErr.Error()),
			)
		}
	}()

	fromVer, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := logger.Took(start)

	toVer := fromVer
	switch {
	case upErr == nil:
		toVer, _, _ = m.Version()
	case errors.Is(upErr, migrate.ErrNoChange):
	default:
		logger.Error(ctx, migrateComponent, "apply",
			slog.String("status", "fail"),
			slog.Uint64("from_ver", uint64(fromVer)),
			slog.Duration("duration", took),
			slog.String("err", upErr.Error()),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	applied := selectApplied(files, uint64(fromVer), uint64(toVer))
	if len(applied) > 0 {
		logger.Debug(ctx, migrateComponent, "apply", fileAttrs(applied)...)
	}
	logger.Info(ctx, migrateComponent, "summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

func fileAttrs(files []string, extra ...slog.Attr) []slog.Attr {
	attrs := append(extra, slog.Int("files_total", len(files)))
	preview, truncated := logger.SummarizeStrings(files, 6)
	if preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview))
	}
	if truncated {
		attrs = append(attrs, slog.Bool("files_truncated", true))
	}
	return attrs
}

// newMigrate opens a dedicated connection for migrations; closing the
// returned Migrate closes that connection as well.
func newMigrate(cfg Config, source fs.FS) (*migrate.Migrate, error) {
	src, err := iofs.New(source, cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("open migrations source: %w", err)
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open migrations connection: %w", err)
	}

	var driver migratedb.Driver
	switch cfg.Driver {
	case DriverSQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, cfg.Driver, driver)
}

func listMigrationFiles(source fs.FS, dir string) []string {
	entries, err := fs.ReadDir(source, dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".up.sql") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) == 0 {
		return 0
	}
	v, _ := strconv.ParseUint(parts[0], 10, 64)
	return v
}

func selectApplied(files []string, from, to uint64) []string {
	if to <= from {
		return nil
	}
	var out []string
	for _, f := range files {
		v := parseVersion(f)
		if v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
