package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/wityliti/wityliti.io-sub000/internal/usecase"
	"go.uber.org/zap"
)

type SecurityHandler struct {
	logger *zap.Logger
	nonces *usecase.NonceGuard
}

func NewSecurityHandler(logger *zap.Logger, nonces *usecase.NonceGuard) *SecurityHandler {
	return &SecurityHandler{logger: logger, nonces: nonces}
}

// IssueNonce hands out a single-use nonce for a signed request
func (h *SecurityHandler) IssueNonce(c echo.Context) error {
	nonce, err := h.nonces.Issue()
	if err != nil {
		h.logger.Error("Failed to issue nonce", zap.Error(err))
		return failure(c, http.StatusInternalServerError, "Failed to issue nonce")
	}
	return success(c, http.StatusOK, echo.Map{
		"nonce":      nonce,
		"expires_in": int(h.nonces.TTL().Seconds()),
	})
}
