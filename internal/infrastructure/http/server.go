package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	handlers "github.com/wityliti/wityliti.io-sub000/internal/adapter/handler/http"
	"github.com/wityliti/wityliti.io-sub000/internal/config"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/crypto"
	"github.com/wityliti/wityliti.io-sub000/internal/middleware/auth"
	"github.com/wityliti/wityliti.io-sub000/internal/middleware/ratelimit"
	"github.com/wityliti/wityliti.io-sub000/internal/middleware/signature"
	"github.com/wityliti/wityliti.io-sub000/internal/usecase"
	"github.com/wityliti/wityliti.io-sub000/pkg/logger"
	"go.uber.org/zap"
)

// Dependencies are the use cases the HTTP surface is built on
type Dependencies struct {
	Sessions        *usecase.SessionService
	Checkout        *usecase.CheckoutOrchestrator
	Reconciler      *usecase.SubscriptionReconciler
	Query           *usecase.SubscriptionQuery
	Nonces          *usecase.NonceGuard
	RateLimiter     *usecase.RateLimiter
	RequestSigner   *crypto.RequestSigner
	WebhookVerifier *usecase.WebhookVerifier
	ParseWebhook    handlers.WebhookParser
	Now             func() time.Time
}

type Server struct {
	config *config.Config
	logger *zap.Logger
	echo   *echo.Echo
	deps   Dependencies
}

func NewServer(cfg *config.Config, log *zap.Logger, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	logger.WithEchoLogger(e, log)
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(logger.NewEchoRequestLogger(log))

	var origins []string
	for _, origin := range []string{cfg.Service.ClientURL, cfg.Service.CheckoutURL} {
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{echo.GET, echo.POST},
		AllowHeaders: []string{
			echo.HeaderAuthorization,
			echo.HeaderContentType,
			signature.HeaderSignature,
			signature.HeaderTimestamp,
		},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
	}))

	s := &Server{
		config: cfg,
		logger: log,
		echo:   e,
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP exposes the router for tests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})

	securityHandler := handlers.NewSecurityHandler(s.logger, s.deps.Nonces)
	sessionHandler := handlers.NewSessionHandler(s.logger, s.deps.Sessions)
	checkoutHandler := handlers.NewCheckoutHandler(s.logger, s.deps.Sessions, s.deps.Checkout)
	paymentHandler := handlers.NewPaymentHandler(s.logger, s.deps.Sessions, s.deps.Reconciler, s.deps.Query)
	subscriptionHandler := handlers.NewSubscriptionHandler(s.logger, s.deps.Query)
	webhookHandler := handlers.NewWebhookHandler(s.logger, s.deps.WebhookVerifier, s.deps.ParseWebhook, s.deps.Reconciler)

	limited := ratelimit.Middleware(ratelimit.Config{
		Limiter: s.deps.RateLimiter,
		Logger:  s.logger,
		Now:     s.deps.Now,
	})
	jwt := auth.JWTMiddleware(auth.JWTConfig{
		Secret: s.config.Security.JWTSecret,
		Logger: s.logger,
	})
	optionallySigned := signature.Middleware(signature.Config{
		Verifier: s.deps.RequestSigner,
		Nonces:   s.deps.Nonces,
		Logger:   s.logger,
	})
	signed := signature.Middleware(signature.Config{
		Verifier: s.deps.RequestSigner,
		Nonces:   s.deps.Nonces,
		Logger:   s.logger,
		Required: true,
	})

	v1 := s.echo.Group("/api/v1")

	// Session-token routes, called by the hosted checkout page
	v1.GET("/security/nonce", securityHandler.IssueNonce, limited)
	v1.POST("/payment-session/verify", sessionHandler.VerifySession, limited, optionallySigned)
	v1.POST("/checkout", checkoutHandler.CreateCheckout, limited)
	v1.POST("/payments/verify", paymentHandler.VerifyPayment, limited)

	// User routes
	v1.POST("/payment-session", sessionHandler.StartSession, jwt, limited)
	v1.GET("/subscriptions/current", subscriptionHandler.GetCurrentSubscription, jwt)
	v1.GET("/payments", paymentHandler.ListPayments, jwt)

	internal := v1.Group("/internal", signed)
	internal.POST("/subscriptions/lookup", subscriptionHandler.LookupSubscription)
	internal.POST("/webhooks/replay", webhookHandler.ReplayWebhook)

	// Webhook route (outside API versioning)
	s.echo.POST("/webhook", webhookHandler.HandleWebhook)
}
