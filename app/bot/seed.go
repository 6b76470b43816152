package bot

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/cardbot/app/model"
	"github.com/m3rciful/cardbot/app/store"
	"github.com/m3rciful/cardbot/core/bootstrap"
	"github.com/m3rciful/cardbot/core/logger"
)

// AdminSeeder grants the admin role to the configured users. Existing
// grants are kept, so an admin who switched the role off via /admin gets
// it back on restart.
func AdminSeeder(uids []int64) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		if len(uids) == 0 {
			return nil
		}
		tx, err := store.New(db).Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		for _, uid := range uids {
			if err := tx.GrantRole(ctx, uid, model.RoleAdmin); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		logger.Info(ctx, "db", "db.seed.admins",
			slog.String("status", "ok"),
			slog.Int("admins", len(uids)),
		)
		return nil
	})
}
