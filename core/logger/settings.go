package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	coreconfig "github.com/m3rciful/cardbot/core/config"
)

type settings struct {
	json      bool
	level     slog.Level
	keyOrder  []string
	sampleNum int
	sampleDen int
	file      string
	profile   string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{
		json:      true,
		level:     slog.LevelInfo,
		keyOrder:  defaultKeyOrder,
		sampleNum: 1,
		sampleDen: 50,
		profile:   "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.json = false
	case "json":
	default:
		s.json = s.profile != "debug" && s.profile != "dev"
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.keyOrder = order
		}
	}

	if ratio := strings.TrimSpace(lc.DebugSample); ratio != "" {
		s.sampleNum, s.sampleDen = parseRatio(ratio)
	}

	if dir, file := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && file != "" {
		s.file = filepath.Join(dir, file)
	}
	return s
}

func (s settings) encoder() encoder {
	if s.json {
		return jsonEncoder{order: s.keyOrder}
	}
	return kvEncoder{order: s.keyOrder}
}

// parseRatio accepts "n/d" or "d" (one in d). Zero or invalid values disable sampling.
func parseRatio(ratio string) (int, int) {
	num, den := 1, 0
	var err error
	if a, b, ok := strings.Cut(ratio, "/"); ok {
		if num, err = strconv.Atoi(strings.TrimSpace(a)); err != nil {
			return 0, 0
		}
		ratio = b
	}
	if den, err = strconv.Atoi(strings.TrimSpace(ratio)); err != nil || num <= 0 || den <= 0 {
		return 0, 0
	}
	return num, den
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}
