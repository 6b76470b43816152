package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/cardbot/app/errs"
)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(string) string
}

func hasRole(ctx context.Context, q queryer, uid int64, role string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		q.Rebind(`SELECT COUNT(*) FROM user_roles WHERE uid = ? AND role = ?`), uid, role)
	if err != nil {
		return false, errs.Storage("has role", err)
	}
	return n > 0, nil
}

// HasRole reports whether uid holds role.
func (t *Tx) HasRole(ctx context.Context, uid int64, role string) (bool, error) {
	return hasRole(ctx, t.tx, uid, role)
}

// GrantRole assigns role to uid; granting twice is a no-op.
func (t *Tx) GrantRole(ctx context.Context, uid int64, role string) error {
	_, err := t.tx.ExecContext(ctx,
		t.tx.Rebind(`INSERT INTO user_roles (uid, role) VALUES (?, ?) ON CONFLICT (uid, role) DO NOTHING`),
		uid, role)
	return errs.Storage("grant role", err)
}

// RevokeRole removes the assignment and reports whether it existed.
func (t *Tx) RevokeRole(ctx context.Context, uid int64, role string) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		t.tx.Rebind(`DELETE FROM user_roles WHERE uid = ? AND role = ?`), uid, role)
	if err != nil {
		return false, errs.Storage("revoke role", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Storage("revoke role", err)
	}
	return n > 0, nil
}
