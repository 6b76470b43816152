package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status", "rid", "trace_id",
	"update_id", "user_id", "chat_id", "handler",
	"duration_ms", "err_code", "err",
}

type encoder interface {
	encode(fields map[string]any) []byte
}

type jsonEncoder struct{ order []string }

func (e jsonEncoder) encode(fields map[string]any) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range orderedKeys(fields, e.order) {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(fields[key])
		if err != nil {
			v, _ = json.Marshal(fmt.Sprint(fields[key]))
		}
		buf.Write(v)
	}
	buf.WriteString("}\n")
	return buf.Bytes()
}

type kvEncoder struct{ order []string }

func (e kvEncoder) encode(fields map[string]any) []byte {
	var buf bytes.Buffer
	for i, key := range orderedKeys(fields, e.order) {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(key)
		buf.WriteByte('=')
		buf.WriteString(kvValue(fields[key]))
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func kvValue(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		s = fmt.Sprint(t)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// orderedKeys lists order entries present in fields first, then the rest sorted.
func orderedKeys(fields map[string]any, order []string) []string {
	keys := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(order))
	for _, k := range order {
		if _, ok := fields[k]; ok {
			keys = append(keys, k)
			seen[k] = struct{}{}
		}
	}
	rest := make([]string, 0, len(fields)-len(keys))
	for k := range fields {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

var statusAliases = map[string]string{
	"ok":      "ok",
	"success": "ok",
	"fail":    "fail",
	"failed":  "fail",
	"error":   "fail",
	"skip":    "skip",
	"skipped": "skip",
	"retry":   "retry",
}

// normalize applies the common field conventions: durations are reported
// as duration_ms, status values are collapsed to a small enum, and a
// missing event falls back to msg.
func normalize(fields map[string]any) {
	if d, ok := fields["duration"]; ok {
		if _, exists := fields["duration_ms"]; !exists {
			fields["duration_ms"] = d
		}
		delete(fields, "duration")
	}
	if s, ok := fields["status"].(string); ok {
		if norm, known := statusAliases[strings.ToLower(s)]; known {
			fields["status"] = norm
		}
	}
	if _, ok := fields["event"]; !ok {
		if msg, ok := fields["msg"].(string); ok && msg != "" {
			fields["event"] = msg
		}
	}
	if ev, ok := fields["event"].(string); ok {
		if msg, ok := fields["msg"].(string); ok && msg == ev {
			delete(fields, "msg")
		}
	}
	if _, ok := fields["component"]; !ok {
		fields["component"] = "app"
	}
}
