// Package netutil classifies network failures of Telegram API calls.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	tele "gopkg.in/telebot.v4"
)

// Error kinds reported by Classify.
const (
	KindTimeout = "timeout"
	KindDNS     = "dns"
	KindDial    = "dial"
	KindReset   = "reset"
	KindTLS     = "tls"
	KindFlood   = "flood"
	KindHTTP4xx = "http_4xx"
	KindHTTP5xx = "http_5xx"
	KindUnknown = "unknown"
)

// ShouldRetry reports whether a failed call is worth repeating: timeouts,
// dial failures, dropped connections and server errors.
func ShouldRetry(err error) bool {
	switch Classify(err) {
	case KindTimeout, KindDial, KindReset, KindHTTP5xx:
		return !errors.Is(err, context.Canceled)
	default:
		return false
	}
}

// Classify maps err to one of the Kind constants, "" for nil.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return KindReset
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindDial
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindDial
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return KindTLS
	}

	switch code := StatusCode(err); {
	case code == http.StatusTooManyRequests:
		return KindFlood
	case code >= 500:
		return KindHTTP5xx
	case code >= 400:
		return KindHTTP4xx
	}
	return KindUnknown
}

// StatusCode extracts the HTTP status of a Bot API error, 0 when unknown.
func StatusCode(err error) int {
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	return 0
}
