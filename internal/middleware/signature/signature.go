package signature

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Signature-Timestamp"

	// ContextKey holds a bool: whether the request carried a valid signature
	ContextKey = "request_signed"

	maxBodyBytes = 1 << 20
)

// Verifier is satisfied by crypto.RequestSigner
type Verifier interface {
	Verify(payload interface{}, timestamp int64, signature string) bool
}

// NonceChecker is satisfied by usecase.NonceGuard
type NonceChecker interface {
	Check(ctx context.Context, nonce string) bool
}

// Config holds the configuration for the request signature middleware
type Config struct {
	Verifier Verifier
	Nonces   NonceChecker
	Logger   *zap.Logger
	// Required rejects unsigned requests
	Required bool
}

// Middleware verifies X-Signature over the canonical JSON body. The body is restored for the handler.
func Middleware(config Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			sig := req.Header.Get(HeaderSignature)
			ts := req.Header.Get(HeaderTimestamp)

			if sig == "" && ts == "" {
				if config.Required {
					config.Logger.Warn("Unsigned request rejected", zap.String("path", path))
					return reject(c)
				}
				c.Set(ContextKey, false)
				return next(c)
			}

			timestamp, err := strconv.ParseInt(ts, 10, 64)
			if err != nil || sig == "" {
				config.Logger.Warn("Malformed request signature headers", zap.String("path", path))
				return reject(c)
			}

			body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes+1))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
			}
			if len(body) > maxBodyBytes {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Request body too large")
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			if !config.Verifier.Verify(body, timestamp, sig) {
				config.Logger.Warn("Request signature rejected",
					zap.String("path", path),
					zap.Int64("timestamp", timestamp))
				return reject(c)
			}

			if nonce, ok := bodyNonce(body); ok {
				if config.Nonces == nil || !config.Nonces.Check(req.Context(), nonce) {
					config.Logger.Warn("Replayed or invalid nonce", zap.String("path", path))
					return reject(c)
				}
			}

			c.Set(ContextKey, true)
			return next(c)
		}
	}
}

// bodyNonce reports a nonce field present in a JSON object body
func bodyNonce(body []byte) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", false
	}
	raw, ok := fields["nonce"]
	if !ok {
		return "", false
	}
	var nonce string
	if err := json.Unmarshal(raw, &nonce); err != nil {
		// a non-string nonce can never be admitted
		return "", true
	}
	return nonce, true
}

func reject(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"error": "Invalid request signature",
		"code":  "INVALID_SIGNATURE",
	})
}

// IsSigned reports whether the signature middleware accepted a signature on this request
func IsSigned(c echo.Context) bool {
	signed, _ := c.Get(ContextKey).(bool)
	return signed
}
