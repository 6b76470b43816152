package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/cardbot/core/logger"
)

const (
	connectTimeout = 5 * time.Second
	readyPoll      = 2 * time.Second
)

func init() {
	// sqlx does not know the modernc driver name; it takes '?' placeholders.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Connect opens a pooled connection for cfg and verifies it with a ping.
func Connect(cfg Config) (*sqlx.DB, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("db config: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	target := []slog.Attr{
		slog.String("driver", cfg.Driver),
		slog.String("target", cfg.Target()),
	}

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN())
	if err == nil {
		err = db.PingContext(ctx)
		if err != nil {
			_ = db.Close()
		}
	}
	if err != nil {
		logger.Error(ctx, "db", "db.connect", append(target,
			slog.String("status", "fail"),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	logger.Info(ctx, "db", "db.connect", append(target,
		slog.String("status", "ok"),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", logger.Took(start)),
	)...)
	return db, nil
}

// WaitForPostgres pings dsn until the server answers or timeout elapses.
func WaitForPostgres(dsn string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		err := pingOnce(dsn)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not ready after %d attempts: %w", attempt, err)
		}
		logger.Debug(logger.Background(), "db", "db.wait",
			slog.Int("attempts", attempt),
			slog.String("err", err.Error()),
		)
		time.Sleep(readyPoll)
	}
}

func pingOnce(dsn string) error {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return db.PingContext(ctx)
}
