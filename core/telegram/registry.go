package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/m3rciful/cardbot/core/logger"
	"github.com/m3rciful/cardbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry holds the command menu published to Telegram.
type Registry struct {
	commands map[string]commands.Command
	admins   []int64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]commands.Command)}
}

// RegisterCommand adds a menu entry.
func (r *Registry) RegisterCommand(cmd commands.Command) error {
	name := commands.Normalize(cmd.Name)
	if name == "" || cmd.Description == "" {
		logger.Warn(context.Background(), "tg.wire", "register.command.skip",
			slog.String("name", cmd.Name),
			slog.String("reason", "invalid"),
		)
		return errors.New("telegram: command needs a name and a description")
	}
	if _, exists := r.commands[name]; exists {
		logger.Warn(context.Background(), "tg.wire", "register.command.duplicate",
			slog.String("name", name),
		)
		return fmt.Errorf("telegram: command already registered: %s", name)
	}
	cmd.Name = name
	r.commands[name] = cmd
	return nil
}

// SetAdminChats lists chats that get the full menu including admin entries.
func (r *Registry) SetAdminChats(ids ...int64) {
	r.admins = append(r.admins[:0], ids...)
}

// ListCommands returns the menu sorted by name. Hidden entries are never
// listed; admin entries only when withAdmin is set.
func (r *Registry) ListCommands(withAdmin bool) []tele.Command {
	var list []tele.Command
	for name, meta := range r.commands {
		if meta.Hidden || (meta.AdminOnly && !withAdmin) {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand finds a command by name with or without the leading slash.
func (r *Registry) LookupCommand(name string) (commands.Command, bool) {
	cmd, ok := r.commands[commands.Normalize(name)]
	return cmd, ok
}

// SetupCommands publishes the default menu and the admin menu of every admin chat.
func SetupCommands(bot *tele.Bot, reg *Registry) {
	if bot == nil || reg == nil || len(reg.commands) == 0 {
		return
	}
	ctx := context.Background()
	if err := bot.SetCommands(reg.ListCommands(false)); err != nil {
		logger.Error(ctx, "tg.wire", "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
		return
	}
	full := reg.ListCommands(true)
	for _, chatID := range reg.admins {
		scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: chatID}
		if err := bot.SetCommands(full, scope); err != nil {
			logger.Warn(ctx, "tg.wire", "register.commands.admin_failed",
				slog.Int64("chat_id", chatID),
				slog.String("err", err.Error()),
			)
		}
	}
	logger.Info(ctx, "tg.wire", "register.commands",
		slog.String("status", "ok"),
		slog.Int("commands", len(reg.commands)),
		slog.Int("admin_chats", len(reg.admins)),
	)
}
