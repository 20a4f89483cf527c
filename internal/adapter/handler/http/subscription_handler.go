package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/wityliti/wityliti.io-sub000/internal/middleware/auth"
	"github.com/wityliti/wityliti.io-sub000/internal/usecase"
	"go.uber.org/zap"
)

type SubscriptionHandler struct {
	logger *zap.Logger
	query  *usecase.SubscriptionQuery
}

func NewSubscriptionHandler(logger *zap.Logger, query *usecase.SubscriptionQuery) *SubscriptionHandler {
	return &SubscriptionHandler{logger: logger, query: query}
}

func (h *SubscriptionHandler) GetCurrentSubscription(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	view, err := h.query.Current(c.Request().Context(), user.UserID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to get current subscription")
	}
	return success(c, http.StatusOK, view)
}

type lookupRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Nonce  string `json:"nonce,omitempty"`
}

// LookupSubscription serves other internal services; the route requires a signed request
func (h *SubscriptionHandler) LookupSubscription(c echo.Context) error {
	var req lookupRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid user_id format")
	}

	// uuid format already validated

	view, err := h.query.Current(c.Request().Context(), uuid.MustParse(req.UserID))
	if err != nil {
		return respondError(c, h.logger, err, "Subscription lookup failed")
	}
	return success(c, http.StatusOK, view)
}
