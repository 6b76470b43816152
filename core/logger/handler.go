package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// structuredHandler flattens record attributes, merges context metadata
// and hands the result to an encoder.
type structuredHandler struct {
	level slog.Leveler
	out   io.Writer
	enc   encoder
	mu    *sync.Mutex
	attrs []slog.Attr
	group string
}

func newStructuredHandler(level slog.Leveler, out io.Writer, enc encoder) *structuredHandler {
	return &structuredHandler{level: level, out: out, enc: enc, mu: &sync.Mutex{}}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), h.qualify(attrs)...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := make(map[string]any, 16)

	for _, a := range h.attrs {
		putAttr(fields, "", a)
	}
	for _, a := range metaFrom(ctx).attrs() {
		if _, ok := fields[a.Key]; !ok {
			putAttr(fields, "", a)
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		putAttr(fields, h.group, a)
		return true
	})
	if r.Message != "" {
		if _, ok := fields["msg"]; !ok {
			fields["msg"] = r.Message
		}
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fields["ts"] = ts.UTC().Format(time.RFC3339Nano)
	fields["level"] = levelName(r.Level)
	normalize(fields)

	line := h.enc.encode(fields)
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(line)
	return err
}

func (h *structuredHandler) qualify(attrs []slog.Attr) []slog.Attr {
	if h.group == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
	}
	return out
}

// putAttr writes a into fields, flattening groups into dotted keys.
func putAttr(fields map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			putAttr(fields, key, ga)
		}
		return
	}
	fields[key] = attrValue(a.Value)
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().Milliseconds()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	}
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
