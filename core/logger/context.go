package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
)

type metaKey struct{}

// meta is the request metadata carried through a context.
type meta struct {
	rid      string
	trace    string
	updateID int
	userID   int64
	chatID   int64
	handler  string
}

func metaFrom(ctx context.Context) meta {
	if ctx == nil {
		return meta{}
	}
	m, _ := ctx.Value(metaKey{}).(meta)
	return m
}

func withMeta(ctx context.Context, fn func(*meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	fn(&m)
	return context.WithValue(ctx, metaKey{}, m)
}

// WithRID stores the request id in ctx.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *meta) { m.rid = rid })
}

// RIDFrom returns the request id stored in ctx.
func RIDFrom(ctx context.Context) string {
	return metaFrom(ctx).rid
}

// WithTrace stores a trace id in ctx.
func WithTrace(ctx context.Context, trace string) context.Context {
	return withMeta(ctx, func(m *meta) { m.trace = trace })
}

// TraceIDFrom returns the trace id stored in ctx.
func TraceIDFrom(ctx context.Context) string {
	return metaFrom(ctx).trace
}

// WithUpdateMeta records the Telegram update identifiers in ctx.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *meta) {
		m.updateID = updateID
		m.userID = userID
		m.chatID = chatID
	})
}

// WithHandler records the handler name in ctx.
func WithHandler(ctx context.Context, handler string) context.Context {
	return withMeta(ctx, func(m *meta) { m.handler = handler })
}

// BuildRID builds a request id from the update identifiers:
// "u<update>-c<chat>-<4 hex>". Zero identifiers are omitted.
func BuildRID(updateID int, chatID int64) string {
	var b strings.Builder
	if updateID != 0 {
		b.WriteString("u")
		b.WriteString(strconv.Itoa(updateID))
	}
	if chatID != 0 {
		if b.Len() > 0 {
			b.WriteByte('-')
		}
		b.WriteString("c")
		b.WriteString(strconv.FormatInt(chatID, 10))
	}
	if b.Len() > 0 {
		b.WriteByte('-')
	}
	b.WriteString(randomHex(2))
	return b.String()
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return strings.Repeat("0", n*2)
	}
	return hex.EncodeToString(buf)
}

// attrs returns the context metadata as log attributes.
func (m meta) attrs() []slog.Attr {
	out := make([]slog.Attr, 0, 8)
	if m.rid != "" {
		out = append(out, slog.String("rid", m.rid))
	}
	if m.trace != "" {
		out = append(out, slog.String("trace_id", m.trace))
	}
	if m.updateID != 0 {
		out = append(out, slog.Int("update_id", m.updateID))
	}
	if m.userID != 0 {
		out = append(out, slog.Int64("user_id", m.userID))
	}
	if m.chatID != 0 {
		out = append(out, slog.Int64("chat_id", m.chatID))
	}
	if m.handler != "" {
		out = append(out, slog.String("handler", m.handler))
	}
	return out
}
