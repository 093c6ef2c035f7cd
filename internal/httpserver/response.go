package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rootwire/account-service/internal/apperror"
)

// Envelope is the uniform response shape for both success and failure.
type Envelope struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
}

func respond(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Envelope{
		Success:    true,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

// ErrorHandler maps domain errors onto the error envelope. Anything
// outside the taxonomy is a 500 with a generic message.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "Something went wrong"

		var appErr *apperror.Error
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
			status = appErr.Code
			message = appErr.Message
		case errors.As(err, &httpErr):
			status = httpErr.Code
			if m, ok := httpErr.Message.(string); ok {
				message = m
			}
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
			message = "Request timed out"
		default:
			log.Error("unhandled_error", "method", c.Request().Method, "path", c.Path(), "error", err)
		}

		if err := c.JSON(status, Envelope{
			Success:    false,
			StatusCode: status,
			Message:    message,
		}); err != nil {
			log.Error("error_response_write_failed", "error", err)
		}
	}
}
