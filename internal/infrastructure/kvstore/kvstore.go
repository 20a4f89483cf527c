// Package kvstore holds the short-lived key-value state behind nonce and rate-limit checks.
package kvstore

import (
	"context"
	"time"
)

// Store is a key-value store with per-key expiry and atomic conditional writes.
// A ttl of zero means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsent writes only when key is missing or expired and reports whether it wrote
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndSwap replaces old with next only if the live value equals old
	CompareAndSwap(ctx context.Context, key, old, next string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// Sweep removes expired entries and returns how many were removed
	Sweep(ctx context.Context) (int, error)
}
