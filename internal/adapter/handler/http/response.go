package http

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/wityliti/wityliti.io-sub000/pkg/errors"
	"go.uber.org/zap"
)

var validate = validator.New()

func success(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, echo.Map{
		"success": true,
		"data":    data,
	})
}

func failure(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{
		"success": false,
		"error":   message,
	})
}

// respondError renders an AppError with its caller-facing message. Causes are logged, never returned.
func respondError(c echo.Context, logger *zap.Logger, err error, msg string) error {
	httpErr := errors.ToHTTPError(err)
	if httpErr.Code >= http.StatusInternalServerError {
		errors.LogError(logger, err, msg, zap.String("path", c.Path()))
	} else {
		logger.Warn(msg,
			zap.String("path", c.Path()),
			zap.String("error_code", errors.CodeOf(err)),
			zap.String("reason", err.Error()))
	}

	// Only the caller-facing message leaves the service
	message, ok := httpErr.Message.(string)
	if !ok {
		message = http.StatusText(httpErr.Code)
	}
	return failure(c, httpErr.Code, message)
}
