package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wityliti/wityliti.io-sub000/internal/config"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/crypto"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/database"
	grpcServer "github.com/wityliti/wityliti.io-sub000/internal/infrastructure/grpc"
	httpServer "github.com/wityliti/wityliti.io-sub000/internal/infrastructure/http"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/kvstore"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/provider"
	"github.com/wityliti/wityliti.io-sub000/internal/usecase"
	"github.com/wityliti/wityliti.io-sub000/pkg/logger"
	"github.com/wityliti/wityliti.io-sub000/pkg/messaging"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewZapLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger = zapLogger.With(
		zap.String("service", cfg.Service.Name),
		zap.String("environment", cfg.Service.Environment))

	// Initialize repositories
	repos, err := database.Open(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open subscriber store", zap.Error(err))
	}
	defer func() {
		if err := repos.Close(); err != nil {
			zapLogger.Error("Failed to close subscriber store", zap.Error(err))
		}
	}()

	gateway, err := provider.NewFactory(cfg, zapLogger).Gateway()
	if err != nil {
		zapLogger.Fatal("Failed to initialize payment gateway", zap.Error(err))
	}

	var publisher messaging.Publisher = messaging.NoopPublisher{}
	if cfg.Redis.Addr != "" {
		publisher, err = messaging.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
	} else {
		zapLogger.Warn("Redis not configured; subscription changes are not published")
	}
	defer publisher.Close()

	box, err := crypto.NewBox(cfg.Security.EncryptionPassphrase)
	if err != nil {
		zapLogger.Fatal("Failed to initialize payload encryption", zap.Error(err))
	}

	// Initialize use cases
	now := time.Now
	kv := kvstore.NewMemory(now)
	validator := usecase.NewTokenPayloadValidator(cfg.Security.AllowedReturnHosts)
	tokens := usecase.NewPaymentTokenService(cfg.Security.PaymentTokenSecret, cfg.Security.TokenTTL, validator, now, zapLogger)
	reconciler := usecase.NewSubscriptionReconciler(usecase.ReconcilerDeps{
		Subscriptions:    repos.Subscription,
		Payments:         repos.Payment,
		Plans:            repos.Plan,
		References:       repos.GatewayReference,
		Events:           repos.WebhookEvent,
		Gateway:          gateway,
		Box:              box,
		GatewaySecret:    cfg.Gateway.KeySecret,
		Publisher:        publisher,
		Channel:          cfg.Redis.Channel,
		OperationTimeout: cfg.Service.StoreTimeout,
		Now:              now,
		Logger:           zapLogger,
	})

	deps := httpServer.Dependencies{
		Sessions:        usecase.NewSessionService(tokens, validator, repos.User, repos.Plan, cfg.Service.CheckoutURL, cfg.Service.StoreTimeout, zapLogger),
		Checkout:        usecase.NewCheckoutOrchestrator(repos.User, repos.Plan, repos.Subscription, repos.GatewayReference, gateway, cfg.Service.StoreTimeout, now, zapLogger),
		Reconciler:      reconciler,
		Query:           usecase.NewSubscriptionQuery(repos.Subscription, repos.Payment),
		Nonces:          usecase.NewNonceGuard(kv, cfg.Security.NonceTTL, zapLogger),
		RateLimiter:     usecase.NewRateLimiter(kv, cfg.Security.RateLimit.Requests, cfg.Security.RateLimit.Window, now, zapLogger),
		RequestSigner:   crypto.NewRequestSigner(cfg.Security.RequestSigningSecret, cfg.Security.ReplayWindow, now),
		WebhookVerifier: usecase.NewWebhookVerifier(cfg.Security.WebhookSecret, zapLogger),
		ParseWebhook:    gateway.ParseWebhookEvent,
		Now:             now,
	}

	// Initialize servers
	grpcSrv := grpcServer.NewServer(cfg, zapLogger)
	httpSrv := httpServer.NewServer(cfg, zapLogger, deps)

	// Start servers
	go func() {
		if err := grpcSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down servers...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	if err := grpcSrv.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	zapLogger.Info("Servers shut down successfully")
}
