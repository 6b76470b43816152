package telegram

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

type flakyTransport struct {
	fails int
	calls int
	err   error
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, f.err
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
}

func TestRetryTransportRetriesDialErrors(t *testing.T) {
	base := &flakyTransport{fails: 2, err: &net.OpError{Op: "dial", Err: errors.New("refused")}}
	rt := &retryTransport{base: base, maxRetries: 3, backoff: time.Millisecond}

	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid/sendMessage", strings.NewReader("text=hi"))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	_ = resp.Body.Close()
	if base.calls != 3 {
		t.Fatalf("calls = %d, want 3", base.calls)
	}
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	base := &flakyTransport{fails: 5, err: errors.New("malformed")}
	rt := &retryTransport{base: base, maxRetries: 3, backoff: time.Millisecond}

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/getMe", nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatal("expected error")
	}
	if base.calls != 1 {
		t.Fatalf("calls = %d, want 1", base.calls)
	}
}
