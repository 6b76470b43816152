// Package filters provides the eligibility predicates attached to dialogue rules.
package filters

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/m3rciful/cardbot/app/model"
	"github.com/m3rciful/cardbot/core/logger"
)

// Filter decides whether a rule may handle msg for userID.
type Filter func(ctx context.Context, userID int64, msg model.Message) bool

// All passes when every filter passes. No filters always pass.
func All(fs ...Filter) Filter {
	return func(ctx context.Context, userID int64, msg model.Message) bool {
		for _, f := range fs {
			if !f(ctx, userID, msg) {
				return false
			}
		}
		return true
	}
}

// Any passes when at least one filter passes.
func Any(fs ...Filter) Filter {
	return func(ctx context.Context, userID int64, msg model.Message) bool {
		for _, f := range fs {
			if f(ctx, userID, msg) {
				return true
			}
		}
		return false
	}
}

// Not negates f.
func Not(f Filter) Filter {
	return func(ctx context.Context, userID int64, msg model.Message) bool {
		return !f(ctx, userID, msg)
	}
}

// Command matches messages whose command is one of names.
func Command(names ...string) Filter {
	set := make([]string, len(names))
	for i, n := range names {
		set[i] = strings.ToLower(strings.TrimPrefix(n, "/"))
	}
	return func(_ context.Context, _ int64, msg model.Message) bool {
		return msg.Command != "" && slices.Contains(set, msg.Command)
	}
}

// Text matches plain text that is not a command.
func Text() Filter {
	return func(_ context.Context, _ int64, msg model.Message) bool {
		return msg.Command == "" && strings.TrimSpace(msg.Text) != ""
	}
}

// AnyMessage matches every message.
func AnyMessage() Filter {
	return func(context.Context, int64, model.Message) bool { return true }
}

// Policy is the process-wide access configuration.
type Policy struct {
	SuperUsers []int64
	Inactive   []int64
}

// SuperUser passes for configured super users.
func SuperUser(p Policy) Filter {
	return inSet(p.SuperUsers)
}

// Inactive passes for users that are configured as inactive.
func Inactive(p Policy) Filter {
	return inSet(p.Inactive)
}

func inSet(ids []int64) Filter {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(_ context.Context, userID int64, _ model.Message) bool {
		_, ok := set[userID]
		return ok
	}
}

// Admin passes for users holding the persisted admin role.
// Lookup failures reject the message.
func Admin(roles *RoleCache) Filter {
	return func(ctx context.Context, userID int64, _ model.Message) bool {
		if roles == nil {
			return false
		}
		ok, err := roles.Has(ctx, userID, model.RoleAdmin)
		if err != nil {
			logger.Warn(ctx, "dialog", "filter.admin",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return false
		}
		return ok
	}
}
