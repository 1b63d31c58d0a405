package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"notebase.evalgo.org/service"
)

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ErrorHandler maps service error kinds onto HTTP status codes. Ownership
// misses arrive here as not-found, which keeps foreign resource ids
// indistinguishable from missing ones.
func ErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := err.Error()

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	case errors.Is(err, service.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, service.ErrRateLimited):
		code = http.StatusTooManyRequests
	case errors.Is(err, service.ErrExternalUnavailable):
		code = http.StatusServiceUnavailable
	}

	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
	})
}
