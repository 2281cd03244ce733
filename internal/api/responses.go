// responses.go - Response envelope helpers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Envelope wraps session, chat and query responses.
type Envelope struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
	Success bool   `json:"success"`
}

func respondOK(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Envelope{Data: data, Success: true})
}

func respondCreated(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusCreated, Envelope{Data: data, Message: message, Success: true})
}

func respondMessage(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusOK, Envelope{Data: data, Message: message, Success: true})
}
