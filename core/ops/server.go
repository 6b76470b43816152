// Package ops serves the operational HTTP endpoints: metrics and health.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/m3rciful/cardbot/core/logger"
	"github.com/m3rciful/cardbot/core/metrics"
)

// Check reports the health of one dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// NewRouter builds the ops router.
func NewRouter(gatherer prometheus.Gatherer, checks ...Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Handle("/metrics", metrics.Handler(gatherer))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		body := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Ping(req.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body[c.Name] = err.Error()
				continue
			}
			body[c.Name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
	return r
}

// Serve runs an HTTP server on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "ops", "ops.listen", slog.String("status", "ok"), slog.String("listen", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
