package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/wityliti/wityliti.io-sub000/internal/usecase"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	logger       *zap.Logger
	sessions     *usecase.SessionService
	orchestrator *usecase.CheckoutOrchestrator
}

func NewCheckoutHandler(logger *zap.Logger, sessions *usecase.SessionService, orchestrator *usecase.CheckoutOrchestrator) *CheckoutHandler {
	return &CheckoutHandler{logger: logger, sessions: sessions, orchestrator: orchestrator}
}

// CreateCheckout creates the gateway objects the checkout widget opens
func (h *CheckoutHandler) CreateCheckout(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body")
	}

	// The session token is the only credential on this route
	claims, err := h.sessions.Authorize(req.Token)
	if err != nil {
		return respondError(c, h.logger, err, "Checkout rejected")
	}

	session, err := h.orchestrator.Start(c.Request().Context(), *claims)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to create checkout")
	}
	return success(c, http.StatusCreated, session)
}
