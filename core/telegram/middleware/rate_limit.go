package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/maypok86/otter"
	"golang.org/x/time/rate"

	"github.com/m3rciful/cardbot/core/logger"
	tghelpers "github.com/m3rciful/cardbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const (
	defaultLimiterCapacity = 10_000
	// limiters of users idle for longer than this are dropped
	limiterIdleTTL = 10 * time.Minute
)

// RateLimitOptions configures behaviour of the rate limit middleware.
// Interval is the refill period of a single token and Burst the bucket size.
type RateLimitOptions struct {
	Interval  time.Duration
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// UpdateKind names the update for logs and rate limit exclusions:
// the message kind for messages, "other" for anything else.
func UpdateKind(upd tele.Update) string {
	if upd.Message == nil {
		return "other"
	}
	return MessageKind(upd.Message)
}

type limiterSet struct {
	mu       sync.Mutex
	limiters otter.Cache[int64, *rate.Limiter]
	every    rate.Limit
	burst    int
}

func (s *limiterSet) allow(userID int64) bool {
	s.mu.Lock()
	lim, ok := s.limiters.Get(userID)
	if !ok {
		lim = rate.NewLimiter(s.every, s.burst)
		s.limiters.Set(userID, lim)
	}
	s.mu.Unlock()
	return lim.Allow()
}

// RateLimitMiddleware returns a middleware that runs a token bucket per user.
// Updates over the limit are dropped after OnLimited runs.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	set := &limiterSet{
		limiters: mustCache[int64, *rate.Limiter](defaultLimiterCapacity, limiterIdleTTL),
		every: rate.Every(opts.Interval),
		burst: opts.Burst,
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[UpdateKind(c.Update())]; skip {
				return next(c)
			}
			if set.allow(user.ID) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("status", "skip"),
				slog.Int("burst", opts.Burst),
				slog.Duration("interval", opts.Interval),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
