// Package store persists users, items and role assignments through sqlx.
// Every dialogue message runs inside at most one Tx.
package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/cardbot/app/errs"
	"github.com/m3rciful/cardbot/app/model"
	"github.com/m3rciful/cardbot/core/database"
	"github.com/m3rciful/cardbot/core/logger"
)

// Store is the record store backed by PostgreSQL or SQLite.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, driver: db.DriverName()}
}

// Begin opens the transaction for one message.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errs.Storage("begin", err)
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// UserExists reports whether uid has a users row.
func (s *Store) UserExists(ctx context.Context, uid int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM users WHERE uid = ?`), uid)
	if err != nil {
		return false, errs.Storage("user exists", err)
	}
	return n > 0, nil
}

// HasRole reads a role assignment outside of any transaction.
func (s *Store) HasRole(ctx context.Context, uid int64, role string) (bool, error) {
	return hasRole(ctx, s.db, uid, role)
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return errs.Storage("ping", s.db.PingContext(ctx))
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a single record-store transaction. It is not safe for concurrent use.
type Tx struct {
	tx     *sqlx.Tx
	driver string
	hooks  []func()
	done   bool
}

// OnCommit registers fn to run after a successful commit.
func (t *Tx) OnCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

// Commit commits and then runs OnCommit hooks in registration order.
func (t *Tx) Commit() error {
	if t.done {
		return errs.Storage("commit", sql.ErrTxDone)
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return errs.Storage("commit", err)
	}
	for _, fn := range t.hooks {
		fn()
	}
	return nil
}

// Rollback aborts the transaction. Calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Warn(logger.Background(), "db", "db.rollback",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return errs.Storage("rollback", err)
	}
	return nil
}

const userColumns = `id, uid, username, location, item_limit`

// FindUser loads the user by external id.
func (t *Tx) FindUser(ctx context.Context, uid int64) (model.User, error) {
	return t.getUser(ctx, "find user", `SELECT `+userColumns+` FROM users WHERE uid = ?`, uid)
}

// LockUser loads the user and holds its row lock until the transaction ends.
// SQLite transactions are opened IMMEDIATE, which already serializes writers.
func (t *Tx) LockUser(ctx context.Context, uid int64) (model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE uid = ?`
	if t.driver == database.DriverPostgres {
		q += ` FOR UPDATE`
	}
	return t.getUser(ctx, "lock user", q, uid)
}

func (t *Tx) getUser(ctx context.Context, op, q string, uid int64) (model.User, error) {
	var u model.User
	err := t.tx.GetContext(ctx, &u, t.tx.Rebind(q), uid)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, errs.NotFound(op, "user")
	}
	if err != nil {
		return model.User{}, errs.Storage(op, err)
	}
	return u, nil
}

// CreateUser inserts a users row and returns it with the generated id.
func (t *Tx) CreateUser(ctx context.Context, uid int64, username string, limit int) (model.User, error) {
	if limit <= 0 {
		limit = model.DefaultItemLimit
	}
	u := model.User{UID: uid, Username: username, ItemLimit: limit}
	q := t.tx.Rebind(`INSERT INTO users (uid, username, item_limit) VALUES (?, ?, ?) RETURNING id`)
	if err := t.tx.GetContext(ctx, &u.ID, q, uid, username, limit); err != nil {
		return model.User{}, errs.Storage("create user", err)
	}
	return u, nil
}

// SetLocation updates the free-text location of a registered user.
func (t *Tx) SetLocation(ctx context.Context, uid int64, location string) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`UPDATE users SET location = ? WHERE uid = ?`), location, uid)
	if err != nil {
		return errs.Storage("set location", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Storage("set location", err)
	}
	if n == 0 {
		return errs.NotFound("set location", "user")
	}
	return nil
}

// Counts returns registered users and active items.
func (t *Tx) Counts(ctx context.Context) (model.Totals, error) {
	var out model.Totals
	q := t.tx.Rebind(`SELECT
		(SELECT COUNT(*) FROM users) AS users,
		(SELECT COUNT(*) FROM items WHERE status < ?) AS active_items`)
	if err := t.tx.GetContext(ctx, &out, q, model.StatusArchived); err != nil {
		return model.Totals{}, errs.Storage("counts", err)
	}
	return out, nil
}
