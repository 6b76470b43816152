package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Dispatched("upload_action", "ok", 20*time.Millisecond)
	c.Dispatched("upload_action", "ok", 30*time.Millisecond)
	c.Dispatched("none", "unmatched", time.Millisecond)
	c.BackendFailure("sessions")
	c.Duplicate()

	if v := testutil.ToFloat64(c.dispatched.WithLabelValues("upload_action", "ok")); v != 2 {
		t.Fatalf("upload_action ok = %v, want 2", v)
	}
	if n := testutil.CollectAndCount(c.dispatched); n != 2 {
		t.Fatalf("dispatch series = %d, want 2", n)
	}
	if n := testutil.CollectAndCount(c.duration, "cardbot_dispatch_duration_seconds"); n != 2 {
		t.Fatalf("histogram series = %d, want 2", n)
	}
	if v := testutil.ToFloat64(c.backendFails.WithLabelValues("sessions")); v != 1 {
		t.Fatalf("backend failures = %v", v)
	}
	if v := testutil.ToFloat64(c.duplicates); v != 1 {
		t.Fatalf("duplicates = %v", v)
	}
}

func TestSendErrorsFunc(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveSendErrors(func() uint64 { return 4 })

	want := `
# HELP cardbot_send_errors_total Outbound Telegram calls that failed after retries.
# TYPE cardbot_send_errors_total counter
cardbot_send_errors_total 4
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "cardbot_send_errors_total"); err != nil {
		t.Fatalf("send errors: %v", err)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RateLimited()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "cardbot_rate_limited_total 1") {
		t.Fatalf("body missing rate limit counter:\n%s", body)
	}
}
