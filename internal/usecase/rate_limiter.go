package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/kvstore"
	"go.uber.org/zap"
)

const (
	DefaultRateLimit       = 10
	DefaultRateLimitWindow = 60 * time.Second
	rateLimitPrefix        = "ratelimit:"
	maxRateLimitAttempts   = 32
)

// ErrRateLimitContention is returned when the window could not be updated atomically
var ErrRateLimitContention = errors.New("rate limit window contention")

// RateLimitResult is the outcome of a single rate check
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets
func (r RateLimitResult) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Seconds() + 0.999)
	if secs < 1 {
		return 1
	}
	return secs
}

// RateLimiter counts requests per identity in windows that open on first use
type RateLimiter struct {
	store  kvstore.Store
	limit  int
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewRateLimiter(store kvstore.Store, limit int, window time.Duration, now func() time.Time, logger *zap.Logger) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{store: store, limit: limit, window: window, now: now, logger: logger}
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

func (w rateWindow) encode() string {
	return strconv.Itoa(w.count) + ":" + strconv.FormatInt(w.resetAt.UnixNano(), 10)
}

func decodeRateWindow(v string) (rateWindow, error) {
	count, reset, ok := strings.Cut(v, ":")
	if !ok {
		return rateWindow{}, fmt.Errorf("malformed rate window %q", v)
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return rateWindow{}, err
	}
	ns, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		return rateWindow{}, err
	}
	return rateWindow{count: n, resetAt: time.Unix(0, ns)}, nil
}

// Check counts one request for identity. Every increment is a compare-and-swap.
func (l *RateLimiter) Check(ctx context.Context, identity string) (RateLimitResult, error) {
	key := rateLimitPrefix + identity

	for attempt := 0; attempt < maxRateLimitAttempts; attempt++ {
		now := l.now()
		current, found, err := l.store.Get(ctx, key)
		if err != nil {
			return RateLimitResult{}, err
		}

		var win rateWindow
		if found {
			if win, err = decodeRateWindow(current); err != nil {
				l.logger.Warn("Resetting malformed rate window", zap.String("identity", identity), zap.Error(err))
				found = false
			}
		}

		if !found || now.After(win.resetAt) {
			next := rateWindow{count: 1, resetAt: now.Add(l.window)}
			var ok bool
			if found {
				ok, err = l.store.CompareAndSwap(ctx, key, current, next.encode(), l.ttl(now, next))
			} else {
				ok, err = l.store.SetIfAbsent(ctx, key, next.encode(), l.ttl(now, next))
			}
			if err != nil {
				return RateLimitResult{}, err
			}
			if ok {
				return l.result(true, next), nil
			}
			continue
		}

		if win.count >= l.limit {
			return l.result(false, win), nil
		}

		next := rateWindow{count: win.count + 1, resetAt: win.resetAt}
		ok, err := l.store.CompareAndSwap(ctx, key, current, next.encode(), l.ttl(now, next))
		if err != nil {
			return RateLimitResult{}, err
		}
		if ok {
			return l.result(true, next), nil
		}
	}

	return RateLimitResult{}, ErrRateLimitContention
}

// ttl keeps the entry past its reset so expiry never races the explicit reset check
func (l *RateLimiter) ttl(now time.Time, w rateWindow) time.Duration {
	return w.resetAt.Sub(now) + l.window
}

func (l *RateLimiter) result(allowed bool, w rateWindow) RateLimitResult {
	remaining := l.limit - w.count
	if !allowed || remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{Allowed: allowed, Limit: l.limit, Remaining: remaining, ResetAt: w.resetAt}
}
