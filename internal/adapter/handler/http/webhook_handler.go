package http

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/provider"
	"github.com/wityliti/wityliti.io-sub000/internal/usecase"
	"go.uber.org/zap"
)

const (
	HeaderWebhookSignature = "X-Razorpay-Signature"
	HeaderWebhookEventID   = "X-Razorpay-Event-Id"

	maxWebhookBody = 1 << 20
)

// WebhookParser normalizes a verified webhook body
type WebhookParser func(body []byte, eventID string) (*provider.WebhookEvent, error)

type WebhookHandler struct {
	logger     *zap.Logger
	verifier   *usecase.WebhookVerifier
	parse      WebhookParser
	reconciler *usecase.SubscriptionReconciler
}

func NewWebhookHandler(logger *zap.Logger, verifier *usecase.WebhookVerifier, parse WebhookParser, reconciler *usecase.SubscriptionReconciler) *WebhookHandler {
	return &WebhookHandler{
		logger:     logger,
		verifier:   verifier,
		parse:      parse,
		reconciler: reconciler,
	}
}

// HandleWebhook answers 2xx once an event is applied or deliberately dropped, 503 when the gateway should retry
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	// Read the raw body; the signature covers these exact bytes
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}
	if len(body) > maxWebhookBody {
		h.logger.Warn("Webhook body too large", zap.Int("bytes", len(body)))
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "Request body too large"})
	}

	// Verify signature
	eventID := c.Request().Header.Get(HeaderWebhookEventID)
	if !h.verifier.Verify(body, c.Request().Header.Get(HeaderWebhookSignature)) {
		h.logger.Warn("Webhook signature verification failed",
			zap.String("event_id", eventID),
			zap.String("ip", c.RealIP()))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid webhook signature"})
	}

	// Parse event
	event, err := h.parse(body, eventID)
	if err != nil {
		h.logger.Warn("Verified webhook could not be parsed",
			zap.String("event_id", eventID),
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error parsing webhook"})
	}

	h.logger.Info("Webhook event received",
		zap.String("type", event.Type),
		zap.String("event_id", event.EventID),
		zap.Time("created", event.CreatedAt))

	// Apply; only a retryable failure asks the gateway to redeliver
	outcome, err := h.reconciler.HandleWebhook(c.Request().Context(), event, body)
	if err != nil {
		h.logger.Error("Webhook processing failed, requesting redelivery",
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "Service temporarily unavailable"})
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true, "outcome": outcome})
}

type replayRequest struct {
	EventID string `json:"event_id" validate:"required,max=100"`
	Nonce   string `json:"nonce,omitempty"`
}

// ReplayWebhook re-applies a logged event that was left pending or failed; the route requires a signed request
func (h *WebhookHandler) ReplayWebhook(c echo.Context) error {
	var req replayRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return failure(c, http.StatusBadRequest, "event_id is required")
	}

	outcome, err := h.reconciler.ReplayWebhook(c.Request().Context(), req.EventID)
	if err != nil {
		return respondError(c, h.logger, err, "Webhook replay failed")
	}
	return success(c, http.StatusOK, echo.Map{"event_id": req.EventID, "outcome": outcome})
}
