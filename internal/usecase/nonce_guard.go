package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/kvstore"
	"go.uber.org/zap"
)

const (
	DefaultNonceTTL = 5 * time.Minute
	nonceBytes      = 16
	noncePrefix     = "nonce:"
)

// NonceGuard admits each nonce at most once within its expiry window
type NonceGuard struct {
	store  kvstore.Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewNonceGuard(store kvstore.Store, ttl time.Duration, logger *zap.Logger) *NonceGuard {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &NonceGuard{store: store, ttl: ttl, logger: logger}
}

// TTL is how long an admitted nonce stays burned
func (g *NonceGuard) TTL() time.Duration {
	return g.ttl
}

// Issue returns a fresh random nonce
func (g *NonceGuard) Issue() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Check returns true the first time nonce is seen. Store failures reject.
func (g *NonceGuard) Check(ctx context.Context, nonce string) bool {
	if removed, err := g.store.Sweep(ctx); err != nil {
		g.logger.Warn("Nonce sweep failed", zap.Error(err))
	} else if removed > 0 {
		g.logger.Debug("Swept expired nonces", zap.Int("removed", removed))
	}

	if nonce == "" {
		return false
	}

	fresh, err := g.store.SetIfAbsent(ctx, noncePrefix+nonce, "1", g.ttl)
	if err != nil {
		g.logger.Error("Nonce store unavailable", zap.Error(err))
		return false
	}
	if !fresh {
		g.logger.Warn("Nonce replay rejected")
	}
	return fresh
}
