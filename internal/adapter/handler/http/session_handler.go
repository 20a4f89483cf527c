package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/wityliti/wityliti.io-sub000/internal/middleware/auth"
	"github.com/wityliti/wityliti.io-sub000/internal/middleware/signature"
	"github.com/wityliti/wityliti.io-sub000/internal/usecase"
	"go.uber.org/zap"
)

type SessionHandler struct {
	logger   *zap.Logger
	sessions *usecase.SessionService
}

func NewSessionHandler(logger *zap.Logger, sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{logger: logger, sessions: sessions}
}

type tokenRequest struct {
	Token string `json:"token"`
}

// StartSession issues a payment session token for the signed-in user
func (h *SessionHandler) StartSession(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req usecase.StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body")
	}

	// Validate and sign the session claims
	token, err := h.sessions.Start(c.Request().Context(), user.UserID.String(), req)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to start payment session")
	}
	return success(c, http.StatusCreated, token)
}

// VerifySession is called by the hosted checkout page with the token it was handed
func (h *SessionHandler) VerifySession(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body")
	}

	view, err := h.sessions.Verify(c.Request().Context(), req.Token)
	if err != nil {
		return respondError(c, h.logger, err, "Payment session verification failed")
	}

	h.logger.Info("Payment session verified",
		zap.String("user_id", view.User.ID),
		zap.String("action", view.Action),
		zap.Bool("signed", signature.IsSigned(c)))
	return success(c, http.StatusOK, view)
}
