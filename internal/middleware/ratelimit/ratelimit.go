package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/wityliti/wityliti.io-sub000/internal/usecase"
	"go.uber.org/zap"
)

// Limiter is satisfied by usecase.RateLimiter
type Limiter interface {
	Check(ctx context.Context, identity string) (usecase.RateLimitResult, error)
}

// Config holds the configuration for the rate-limit middleware
type Config struct {
	Limiter Limiter
	Logger  *zap.Logger
	// Now is used for Retry-After; defaults to time.Now
	Now func() time.Time
}

// Middleware counts requests per client IP and route. Store failures let the request through.
func Middleware(config Config) echo.MiddlewareFunc {
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := c.RealIP() + "|" + c.Path()

			result, err := config.Limiter.Check(c.Request().Context(), identity)
			if err != nil {
				config.Logger.Error("Rate limit check failed, allowing request",
					zap.String("identity", identity),
					zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := result.RetryAfter(now())
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				config.Logger.Warn("Rate limit exceeded",
					zap.String("ip", c.RealIP()),
					zap.String("path", c.Path()),
					zap.Int("retry_after", retryAfter))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":      "Too many requests",
					"retryAfter": retryAfter,
				})
			}

			return next(c)
		}
	}
}
