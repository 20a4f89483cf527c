package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	inner := NewAppError(ErrNotFound, "plan not found", nil)
	wrapped := Wrap(inner, "checkout failed")

	assert.Equal(t, ErrNotFound, CodeOf(wrapped))
	assert.Nil(t, Wrap(nil, "noop"))
	assert.Equal(t, ErrInternal, CodeOf(Wrap(fmt.Errorf("boom"), "x")))
}

func TestToHTTPErrorHidesUpstreamCause(t *testing.T) {
	err := Unavailable(fmt.Errorf("dial tcp 10.0.0.1:5432: connection refused"))

	httpErr := ToHTTPError(err)

	assert.Equal(t, http.StatusServiceUnavailable, httpErr.Code)
	assert.Equal(t, "Service temporarily unavailable", httpErr.Message)
}

func TestToHTTPErrorPlainErrors(t *testing.T) {
	httpErr := ToHTTPError(fmt.Errorf("secret internals"))
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
	assert.NotContains(t, fmt.Sprint(httpErr.Message), "secret")

	echoErr := echo.NewHTTPError(http.StatusTeapot, "tea")
	assert.Same(t, echoErr, ToHTTPError(echoErr))
}
