package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/cardbot/core/config"
)

func newTestLogger(enc encoder) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	var lv slog.LevelVar
	lv.Set(slog.LevelDebug)
	return slog.New(newStructuredHandler(&lv, &buf, enc)), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return out
}

func TestHandlerMergesContextMeta(t *testing.T) {
	l, buf := newTestLogger(jsonEncoder{order: defaultKeyOrder})

	ctx := WithUpdateMeta(context.Background(), 42, 7, 9)
	ctx = WithRID(ctx, "u42-c9-abcd")
	ctx = WithTrace(ctx, "trace-1")
	ctx = WithHandler(ctx, "conversation")

	l.With(slog.String("component", "tg")).LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("event", "handler.done"),
		slog.String("status", "success"),
		slog.Duration("duration", 1500*time.Millisecond),
	)

	got := decodeLine(t, buf)
	want := map[string]any{
		"component":   "tg",
		"event":       "handler.done",
		"status":      "ok",
		"rid":         "u42-c9-abcd",
		"trace_id":    "trace-1",
		"handler":     "conversation",
		"level":       "info",
		"update_id":   float64(42),
		"user_id":     float64(7),
		"chat_id":     float64(9),
		"duration_ms": float64(1500),
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %#v, want %#v (line %s)", k, got[k], v, buf.String())
		}
	}
	if _, ok := got["duration"]; ok {
		t.Fatal("duration should be renamed to duration_ms")
	}
}

func TestHandlerKeyOrder(t *testing.T) {
	l, buf := newTestLogger(jsonEncoder{order: defaultKeyOrder})
	l.LogAttrs(context.Background(), slog.LevelWarn, "",
		slog.String("zeta", "z"),
		slog.String("event", "x"),
		slog.String("alpha", "a"),
	)
	line := buf.String()
	idx := func(key string) int { return strings.Index(line, `"`+key+`"`) }
	if !(idx("ts") < idx("level") && idx("level") < idx("component") && idx("component") < idx("event")) {
		t.Fatalf("fixed keys out of order: %s", line)
	}
	if !(idx("event") < idx("alpha") && idx("alpha") < idx("zeta")) {
		t.Fatalf("extra keys should follow sorted: %s", line)
	}
}

func TestHandlerGroupsAndErrors(t *testing.T) {
	l, buf := newTestLogger(jsonEncoder{order: defaultKeyOrder})
	l.WithGroup("req").LogAttrs(context.Background(), slog.LevelError, "boom",
		slog.Group("http", slog.Int("code", 502)),
		slog.Any("err", errors.New("upstream")),
	)
	got := decodeLine(t, buf)
	if got["req.http.code"] != float64(502) {
		t.Fatalf("group not flattened: %s", buf.String())
	}
	if got["req.err"] != "upstream" {
		t.Fatalf("error not rendered: %s", buf.String())
	}
	if got["event"] != "boom" || got["level"] != "error" {
		t.Fatalf("msg should become event: %s", buf.String())
	}
	if _, ok := got["msg"]; ok {
		t.Fatalf("msg duplicated: %s", buf.String())
	}
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	var lv slog.LevelVar
	lv.Set(slog.LevelWarn)
	l := slog.New(newStructuredHandler(&lv, &buf, kvEncoder{}))
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
}

func TestKVEncoderQuotes(t *testing.T) {
	line := string(kvEncoder{order: []string{"event"}}.encode(map[string]any{
		"event": "send",
		"err":   "bad request",
		"n":     int64(3),
	}))
	if line != "event=send err=\"bad request\" n=3\n" {
		t.Fatalf("kv line = %q", line)
	}
}

func TestBuildRID(t *testing.T) {
	re := regexp.MustCompile(`^u12-c-34-[0-9a-f]{4}$`)
	if rid := BuildRID(12, -34); !re.MatchString(rid) {
		t.Fatalf("rid = %q", rid)
	}
	if rid := BuildRID(0, 0); len(rid) != 4 {
		t.Fatalf("bare rid = %q", rid)
	}
}

func TestContextDefaults(t *testing.T) {
	if TraceIDFrom(context.Background()) != "" || RIDFrom(context.Background()) != "" {
		t.Fatal("expected empty metadata")
	}
	ctx := WithTrace(WithRID(context.Background(), "r"), "t")
	ctx = WithTrace(ctx, "t2")
	if RIDFrom(ctx) != "r" || TraceIDFrom(ctx) != "t2" {
		t.Fatalf("rid=%q trace=%q", RIDFrom(ctx), TraceIDFrom(ctx))
	}
}

func TestSampler(t *testing.T) {
	s := newSampler(1, 4)
	allowed := 0
	for range 12 {
		if s.allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed = %d, want 3", allowed)
	}
	s.set(0, 0)
	if !s.allow() {
		t.Fatal("den 0 should allow everything")
	}
}

func TestParseRatio(t *testing.T) {
	cases := map[string][2]int{
		"1/10": {1, 10},
		"20":   {1, 20},
		"x":    {0, 0},
		"3/0":  {0, 0},
	}
	for in, want := range cases {
		n, d := parseRatio(in)
		if n != want[0] || d != want[1] {
			t.Fatalf("parseRatio(%q) = %d/%d, want %d/%d", in, n, d, want[0], want[1])
		}
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := settingsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:     "debug",
		Profile:   "dev",
		KeysOrder: "event, level",
	}})
	if s.json || s.level != slog.LevelDebug {
		t.Fatalf("settings = %+v", s)
	}
	if len(s.keyOrder) != 2 || s.keyOrder[0] != "event" {
		t.Fatalf("key order = %v", s.keyOrder)
	}
	if d := settingsFrom(nil); !d.json || d.level != slog.LevelInfo {
		t.Fatalf("defaults = %+v", d)
	}
}

func TestAsyncWriterFlushesOnClose(t *testing.T) {
	var buf bytes.Buffer
	w := newAsyncWriter(&buf, 2)
	for range 5 {
		if _, err := w.Write([]byte("x")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if buf.String() != "xxxxx" {
		t.Fatalf("flushed %q", buf.String())
	}
	_, _ = w.Write([]byte("y"))
	if buf.String() != "xxxxxy" {
		t.Fatalf("write after close = %q", buf.String())
	}
}

func TestUtilHelpers(t *testing.T) {
	if got := SanitizeLimit("a  b\n c", 3); got != "a b…" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got, cut := SummarizeStrings([]string{"a", "b", "c"}, 2); got != "a,b,…" || !cut {
		t.Fatalf("SummarizeStrings = %q %v", got, cut)
	}
	if Status(nil) != "ok" || Status(errors.New("x")) != "fail" {
		t.Fatal("unexpected status mapping")
	}
	if RoundMS(1499*time.Microsecond) != time.Millisecond {
		t.Fatal("RoundMS should round to milliseconds")
	}
}
