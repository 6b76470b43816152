package logger

import (
	"strings"
	"time"
	"unicode/utf8"
)

// SanitizeLimit collapses whitespace and truncates s to limit runes, appending "…".
func SanitizeLimit(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "…"
}

// RoundMS rounds d to whole milliseconds.
func RoundMS(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

// Took returns the elapsed time since start rounded to milliseconds.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// Status maps an error to the status field value.
func Status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

// SummarizeStrings joins up to limit items with commas and reports whether items were cut.
func SummarizeStrings(items []string, limit int) (string, bool) {
	if len(items) == 0 {
		return "", false
	}
	if limit <= 0 || len(items) <= limit {
		return strings.Join(items, ","), false
	}
	return strings.Join(items[:limit], ",") + ",…", true
}
