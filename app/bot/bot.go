// Package bot assembles the card bot from its configuration.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/m3rciful/cardbot/app/config"
	"github.com/m3rciful/cardbot/app/dialog"
	"github.com/m3rciful/cardbot/app/filters"
	"github.com/m3rciful/cardbot/app/handlers"
	"github.com/m3rciful/cardbot/app/messages"
	"github.com/m3rciful/cardbot/app/model"
	"github.com/m3rciful/cardbot/app/store"
	"github.com/m3rciful/cardbot/core/bootstrap"
	"github.com/m3rciful/cardbot/core/logger"
	"github.com/m3rciful/cardbot/core/metrics"
	"github.com/m3rciful/cardbot/core/ops"
	coretelegram "github.com/m3rciful/cardbot/core/telegram"
	tghelpers "github.com/m3rciful/cardbot/core/telegram/helpers"
	"github.com/m3rciful/cardbot/core/telegram/router"
	tgsender "github.com/m3rciful/cardbot/core/telegram/sender"
	"github.com/m3rciful/cardbot/core/telegram/state"
	"github.com/m3rciful/cardbot/migrations"

	tele "gopkg.in/telebot.v4"
)

const drainTimeout = 15 * time.Second

// App owns every long-lived component of the bot.
type App struct {
	cfg *config.Config

	texts      *messages.Catalogue
	records    *store.Store
	sessions   state.Store
	roles      *filters.RoleCache
	dispatcher *dialog.Dispatcher

	gatherer prometheus.Gatherer
	metrics  *metrics.Collector
	ops      http.Handler

	stopOps context.CancelFunc
	opsDone chan error
}

// New bootstraps infrastructure and builds the dialogue core.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	texts, err := messages.New(cfg.Messages)
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}

	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		Migrations: migrations.FS,
		Seeders:    []bootstrap.Seeder{AdminSeeder(cfg.Bot.Admins)},
	})
	if err != nil {
		return nil, err
	}
	app, err := assemble(ctx, cfg, res.DB, texts, prometheus.NewRegistry())
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return app, nil
}

func assemble(ctx context.Context, cfg *config.Config, db *sqlx.DB, texts *messages.Catalogue, reg *prometheus.Registry) (app *App, err error) {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)
	records := store.New(db)

	sessions, err := OpenSessions(ctx, cfg.Session)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = sessions.Close()
		}
	}()

	roles, err := filters.NewRoleCache(records, 0, time.Duration(cfg.Bot.RoleCacheTTLSec)*time.Second)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			roles.Close()
		}
	}()

	h := handlers.New(handlers.Config{
		Policy: filters.Policy{
			SuperUsers: cfg.Bot.SuperUsers,
			Inactive:   cfg.Bot.InactiveUsers,
		},
		ItemLimit:    cfg.Bot.DefaultItemLimit,
		ConfirmToken: cfg.Bot.ConfirmToken,
		SearchLimit:  cfg.Bot.SearchLimit,
	}, texts, roles)

	rules, err := dialog.NewRegistry(h.Rules()...)
	if err != nil {
		return nil, fmt.Errorf("dialogue rules: %w", err)
	}
	machine, err := dialog.NewMachine(dialog.DefaultTransitions())
	if err != nil {
		return nil, fmt.Errorf("dialogue machine: %w", err)
	}
	d, err := dialog.NewDispatcher(rules, machine, sessions, records, dialog.Options{
		Texts:   texts,
		Metrics: collector,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:        cfg,
		texts:      texts,
		records:    records,
		sessions:   sessions,
		roles:      roles,
		dispatcher: d,
		gatherer:   reg,
		metrics:    collector,
		ops: ops.NewRouter(reg,
			ops.Check{Name: dialog.BackendRecords, Ping: records.Ping},
			ops.Check{Name: dialog.BackendSessions, Ping: sessions.Ping},
		),
	}, nil
}

// OpenSessions connects the configured session backend.
func OpenSessions(ctx context.Context, cfg config.SessionConfig) (state.Store, error) {
	switch cfg.Backend {
	case config.SessionRedis:
		client, err := state.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		return state.NewRedisStore(client, cfg.Redis), nil
	case config.SessionMemory, "":
		logger.Warn(ctx, "session", "session.backend",
			slog.String("backend", config.SessionMemory),
			slog.String("note", "sessions are lost on restart"),
		)
		return state.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("session store: unknown backend %q", cfg.Backend)
	}
}

// Converse feeds one inbound message to the dispatcher.
func (a *App) Converse(ctx context.Context, in router.Inbound) (router.Outbound, error) {
	msg := model.NewMessage(in.UpdateID, in.UserID, in.ChatID, in.Username, in.Text)
	reply, err := a.dispatcher.Dispatch(ctx, msg)
	return router.Outbound{
		Text:           reply.Text,
		RemoveKeyboard: reply.RemoveKeyboard,
		Skip:           reply.Skip,
	}, err
}

// TelegramRunOptions wires the transport to the dialogue core.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	for _, cmd := range handlers.Commands() {
		if err := reg.RegisterCommand(cmd); err != nil {
			return coretelegram.RunOptions{}, fmt.Errorf("register /%s: %w", cmd.Name, err)
		}
	}
	reg.SetAdminChats(append(append([]int64(nil), a.cfg.Bot.SuperUsers...), a.cfg.Bot.Admins...)...)

	return coretelegram.RunOptions{
		Config:            &a.cfg.Config,
		Registry:          reg,
		DispatcherOptions: tgsender.Options{Workers: 1},
		Middlewares:       coretelegram.DefaultMiddlewares(&a.cfg.Config, a.onLimited),
		Routes:            router.ConversationRoutes(a),
		OnStart:           a.start,
		OnStop:            a.stop,
	}, nil
}

// onLimited answers a throttled update so the message is not dropped silently.
func (a *App) onLimited(c tele.Context) error {
	a.metrics.RateLimited()
	return tghelpers.SendPlain(c, a.texts.Get(messages.SlowDown), false)
}

func (a *App) start(ctx context.Context, rt coretelegram.Runtime) error {
	a.metrics.ObserveSendErrors(rt.Dispatcher.ErrorCount)
	if a.cfg.Ops.Listen == "" {
		return nil
	}
	opsCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stopOps = cancel
	a.opsDone = make(chan error, 1)
	go func() {
		a.opsDone <- ops.Serve(opsCtx, a.cfg.Ops.Listen, a.ops)
	}()
	return nil
}

func (a *App) stop(ctx context.Context, _ coretelegram.Runtime) error {
	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	var errs []error
	if err := a.dispatcher.Wait(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("drain dispatcher: %w", err))
	}
	if a.stopOps != nil {
		a.stopOps()
		if err := <-a.opsDone; err != nil {
			errs = append(errs, fmt.Errorf("ops server: %w", err))
		}
	}
	errs = append(errs, a.Close())
	return errors.Join(errs...)
}

// Close releases stores and caches.
func (a *App) Close() error {
	a.dispatcher.Close()
	a.roles.Close()
	return errors.Join(a.sessions.Close(), a.records.Close())
}
