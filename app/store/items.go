package store

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/cardbot/app/errs"
	"github.com/m3rciful/cardbot/app/model"
)

// ItemFilter is a conjunction of predicates over items. Zero fields do not
// constrain the query, except IDs: a non-nil empty slice matches nothing.
type ItemFilter struct {
	OwnerUID    int64
	IDs         []int64
	Status      *model.Status
	StatusBelow *model.Status
}

// ActiveOf matches the active items of the user with external id uid.
func ActiveOf(uid int64) ItemFilter {
	below := model.StatusArchived
	return ItemFilter{OwnerUID: uid, StatusBelow: &below}
}

func (f ItemFilter) empty() bool {
	return f.IDs != nil && len(f.IDs) == 0
}

func (f ItemFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.OwnerUID != 0 {
		conds = append(conds, "u.uid = ?")
		args = append(args, f.OwnerUID)
	}
	if len(f.IDs) > 0 {
		conds = append(conds, "i.id IN (?)")
		args = append(args, f.IDs)
	}
	if f.Status != nil {
		conds = append(conds, "i.status = ?")
		args = append(args, *f.Status)
	}
	if f.StatusBelow != nil {
		conds = append(conds, "i.status < ?")
		args = append(args, *f.StatusBelow)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const itemFrom = ` FROM items i JOIN users u ON u.id = i.owner_id`

func (t *Tx) query(op, head string, f ItemFilter, tail string, extra ...any) (string, []any, error) {
	where, args := f.where()
	q, args, err := sqlx.In(head+itemFrom+where+tail, append(args, extra...)...)
	if err != nil {
		return "", nil, errs.Storage(op, err)
	}
	return t.tx.Rebind(q), args, nil
}

// CountItems counts items matching f.
func (t *Tx) CountItems(ctx context.Context, f ItemFilter) (int, error) {
	if f.empty() {
		return 0, nil
	}
	q, args, err := t.query("count items", `SELECT COUNT(*)`, f, "")
	if err != nil {
		return 0, err
	}
	var n int
	if err := t.tx.GetContext(ctx, &n, q, args...); err != nil {
		return 0, errs.Storage("count items", err)
	}
	return n, nil
}

// ListItems returns items matching f ordered by id.
func (t *Tx) ListItems(ctx context.Context, f ItemFilter) ([]model.Item, error) {
	if f.empty() {
		return nil, nil
	}
	q, args, err := t.query("list items",
		`SELECT i.id, i.owner_id, i.name, i.price, i.status`, f, ` ORDER BY i.id`)
	if err != nil {
		return nil, err
	}
	var items []model.Item
	if err := t.tx.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, errs.Storage("list items", err)
	}
	return items, nil
}

// InsertItems writes all items in one multi-row statement.
func (t *Tx) InsertItems(ctx context.Context, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	_, err := t.tx.NamedExecContext(ctx,
		`INSERT INTO items (owner_id, name, price, status) VALUES (:owner_id, :name, :price, :status)`,
		items,
	)
	return errs.Storage("insert items", err)
}

// DeleteItems hard-deletes the items matching f and returns them.
func (t *Tx) DeleteItems(ctx context.Context, f ItemFilter) ([]model.Item, error) {
	items, err := t.ListItems(ctx, f)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	q, args, err := sqlx.In(`DELETE FROM items WHERE id IN (?)`, ids)
	if err != nil {
		return nil, errs.Storage("delete items", err)
	}
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(q), args...); err != nil {
		return nil, errs.Storage("delete items", err)
	}
	return items, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchItems finds active items whose name contains query, ignoring case.
func (t *Tx) SearchItems(ctx context.Context, query string, limit int) ([]model.Item, error) {
	below := model.StatusArchived
	pattern := "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(query))) + "%"
	q, args, err := t.query("search items",
		`SELECT i.id, i.owner_id, i.name, i.price, i.status`,
		ItemFilter{StatusBelow: &below},
		` AND LOWER(i.name) LIKE ? ESCAPE '\' ORDER BY i.id LIMIT ?`,
		pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	var items []model.Item
	if err := t.tx.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, errs.Storage("search items", err)
	}
	return items, nil
}
