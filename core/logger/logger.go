// Package logger emits one structured line per event. Events carry a
// component and an event name; request metadata travels in the context.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/cardbot/core/buildinfo"
	coreconfig "github.com/m3rciful/cardbot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	base     = slog.New(slog.DiscardHandler)
	levelVar slog.LevelVar
	output   *asyncWriter
	closers  []io.Closer

	debugSampler  = newSampler(1, 50)
	traceOverride bool
)

// InitLogger configures the global structured logger. Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		s := settingsFrom(cfg)
		levelVar.Set(s.level)
		debugSampler.set(s.sampleNum, s.sampleDen)
		traceOverride = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))

		writers := []io.Writer{os.Stdout}
		if s.file != "" {
			f, err := openLogFile(s.file)
			if err != nil {
				initErr = err
				return
			}
			writers = append(writers, f)
			closers = append(closers, f)
		}
		output = newAsyncWriter(io.MultiWriter(writers...), 256)

		base = slog.New(newStructuredHandler(&levelVar, output, s.encoder()))
		slog.SetDefault(base)

		Info(context.Background(), "app", "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build", buildinfo.String()),
			slog.String("profile", s.profile),
			slog.String("level", s.level.String()),
		)
	})
	return initErr
}

// Shutdown flushes buffered log output and closes opened sinks.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if output != nil {
		errs = append(errs, output.Close())
	}
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Background returns context.Background(); it marks call sites outside any update.
func Background() context.Context {
	return context.Background()
}

// Component returns the base logger scoped to a component.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return base
	}
	return base.With(slog.String("component", name))
}

// Event logs one event of component at level.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	logg := Component(component)
	if !logg.Enabled(ctx, level) {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug event should be logged.
// TRACE=1 in the environment disables sampling.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.allow()
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
