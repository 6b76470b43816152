package middleware

import (
	"log/slog"
	"time"

	"github.com/maypok86/otter"

	"github.com/m3rciful/cardbot/core/logger"
	tghelpers "github.com/m3rciful/cardbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// receipts remembers recently logged update ids so an update that passes
// through the middleware on several branches is logged once.
var receipts = mustCache[int, struct{}](4096, 10*time.Second)

func mustCache[K comparable, V any](capacity int, ttl time.Duration) otter.Cache[K, V] {
	c, err := otter.MustBuilder[K, V](capacity).WithTTL(ttl).Build()
	if err != nil {
		panic(err)
	}
	return c
}

func alreadyLogged(updateID int) bool {
	if _, ok := receipts.Get(updateID); ok {
		return true
	}
	receipts.Set(updateID, struct{}{})
	return false
}

// MessageKind classifies the payload of a message update for logs.
func MessageKind(m *tele.Message) string {
	switch {
	case m == nil:
		return ""
	case m.Document != nil:
		return "document"
	case m.Photo != nil:
		return "photo"
	case m.Sticker != nil:
		return "sticker"
	case m.Text != "":
		return "text"
	default:
		return "other"
	}
}

// LoggerMiddleware prepares the logging context of an update and logs its
// receipt once per update id.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set("update_start", time.Now())
		ctx := tghelpers.BuildContext(c)

		upd := c.Update()
		if !logger.ShouldSampleDebug() || alreadyLogged(upd.ID) {
			return next(c)
		}

		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.String("kind", UpdateKind(upd)),
		}
		if chat := c.Chat(); chat != nil {
			attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
		}
		if user := c.Sender(); user != nil {
			if user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
			}
			if user.LanguageCode != "" {
				attrs = append(attrs, slog.String("lang", user.LanguageCode))
			}
		}
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
		logger.Event(ctx, "tg", slog.LevelDebug, "update.received", attrs...)

		return next(c)
	}
}
