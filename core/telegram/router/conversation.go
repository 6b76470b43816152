package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/cardbot/core/logger"
	tg "github.com/m3rciful/cardbot/core/telegram"
	tghelpers "github.com/m3rciful/cardbot/core/telegram/helpers"
	"github.com/m3rciful/cardbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Inbound is a private message reduced to what a conversation needs.
// Text is empty for media updates.
type Inbound struct {
	UpdateID int
	UserID   int64
	ChatID   int64
	Username string
	Text     string
	Kind     string
}

// Outbound is the answer to an Inbound message.
type Outbound struct {
	Text           string
	RemoveKeyboard bool
	Skip           bool
}

// Conversation turns one inbound message into at most one reply. A non-nil
// error is logged; Outbound is still delivered when it carries text.
type Conversation interface {
	Converse(ctx context.Context, in Inbound) (Outbound, error)
}

// ConversationFunc adapts a function to Conversation.
type ConversationFunc func(ctx context.Context, in Inbound) (Outbound, error)

// Converse calls f.
func (f ConversationFunc) Converse(ctx context.Context, in Inbound) (Outbound, error) {
	return f(ctx, in)
}

// ConversationRoutes binds text and media updates to conv.
func ConversationRoutes(conv Conversation) []tg.Route {
	if conv == nil {
		return nil
	}
	handle := func(c tele.Context) error {
		start := time.Now()
		if c.Sender() == nil || c.Message() == nil {
			logHandlerSummary(c, "conversation", start, "skip", "ok", nil)
			return nil
		}
		in := inboundFrom(c)

		var out Outbound
		return handleWithSummary(c, "conversation", start, "", "", func() error {
			var err error
			out, err = conv.Converse(tghelpers.BuildContext(c), in)
			if out.Skip || out.Text == "" {
				return err
			}
			if sendErr := tghelpers.SendPlain(c, out.Text, out.RemoveKeyboard); sendErr != nil {
				logger.Warn(tghelpers.BuildContext(c), "tg", "reply.send",
					slog.String("status", "fail"),
					slog.String("err", logger.SanitizeLimit(sendErr.Error(), 256)),
				)
				if err == nil {
					err = sendErr
				}
			}
			return err
		}, slog.String("kind", in.Kind))
	}

	routes := make([]tg.Route, 0, 4)
	for _, endpoint := range []string{tele.OnText, tele.OnDocument, tele.OnPhoto, tele.OnSticker} {
		routes = append(routes, tg.Route{Endpoint: endpoint, Handler: handle})
	}

	logger.Info(logger.Background(), "tg.wire", "tg.wire",
		slog.String("status", "ok"),
		slog.Int("routes", len(routes)),
	)
	return routes
}

func inboundFrom(c tele.Context) Inbound {
	msg := c.Message()
	userID, chatID := tghelpers.SenderIDs(c)
	in := Inbound{
		UpdateID: c.Update().ID,
		UserID:   userID,
		ChatID:   chatID,
		Username: c.Sender().Username,
		Kind:     middleware.MessageKind(msg),
	}
	if in.Kind == "text" {
		in.Text = msg.Text
	}
	return in
}
