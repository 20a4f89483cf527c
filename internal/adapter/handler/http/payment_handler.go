package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
	"github.com/wityliti/wityliti.io-sub000/internal/middleware/auth"
	"github.com/wityliti/wityliti.io-sub000/internal/usecase"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	logger     *zap.Logger
	sessions   *usecase.SessionService
	reconciler *usecase.SubscriptionReconciler
	query      *usecase.SubscriptionQuery
}

func NewPaymentHandler(
	logger *zap.Logger,
	sessions *usecase.SessionService,
	reconciler *usecase.SubscriptionReconciler,
	query *usecase.SubscriptionQuery,
) *PaymentHandler {
	return &PaymentHandler{
		logger:     logger,
		sessions:   sessions,
		reconciler: reconciler,
		query:      query,
	}
}

type verifyPaymentRequest struct {
	Token string `json:"token"`
	entity.PaymentConfirmation
}

// VerifyPayment confirms a completed checkout before the webhook arrives
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	// Parse request
	var req verifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body")
	}

	claims, err := h.sessions.Authorize(req.Token)
	if err != nil {
		return respondError(c, h.logger, err, "Payment verification rejected")
	}

	if err := validate.Struct(req.PaymentConfirmation); err != nil {
		h.logger.Warn("Invalid payment confirmation", zap.Error(err))
		return failure(c, http.StatusBadRequest, "gateway_payment_id and a hex signature are required")
	}

	// The user comes from the token, never from the body
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return failure(c, http.StatusBadRequest, "Invalid user_id format")
	}

	sub, outcome, err := h.reconciler.ConfirmPayment(c.Request().Context(), userID, req.PaymentConfirmation)
	if err != nil {
		return respondError(c, h.logger, err, "Payment verification failed")
	}

	return success(c, http.StatusOK, echo.Map{
		"outcome":      outcome,
		"subscription": usecase.SubscriptionView(sub),
		"return_url":   claims.ReturnURL,
	})
}

// ListPayments returns the signed-in user's payment ledger
func (h *PaymentHandler) ListPayments(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	// Bind query parameters
	var params entity.PaginationParams
	if err := c.Bind(&params); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid pagination parameters")
	}

	page, err := h.query.Payments(c.Request().Context(), user.UserID, params)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list payments")
	}
	return c.JSON(http.StatusOK, page)
}
