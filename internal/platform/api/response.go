// Package api holds the JSON envelope, error rendering and request binding
// shared by every HTTP handler.
package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/pagination"
)

// Success renders {"success": true, key: v}.
func Success(c echo.Context, status int, key string, v interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"success": true,
		key:       v,
	})
}

// Paged renders a list with its pagination metadata next to it.
func Paged(c echo.Context, key string, v interface{}, page pagination.Page) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		key:        v,
		"total":    page.Total,
		"limit":    page.Limit,
		"offset":   page.Offset,
		"has_more": page.HasMore,
	})
}

type failureBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Failure renders err as {"success": false, "message": ...}. Internal
// errors are logged with the request logger and shown generically.
func Failure(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		zerolog.Ctx(c.Request().Context()).Error().
			Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Msg("request failed")
	}
	return c.JSON(apperr.HTTPStatus(kind), failureBody{Success: false, Message: apperr.Message(err)})
}

// ErrorHandler is installed as echo's HTTPErrorHandler so middleware and
// router errors share the failure envelope.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		if he.Code >= http.StatusInternalServerError {
			zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("request failed")
			msg = "internal server error"
		}
		_ = c.JSON(he.Code, failureBody{Success: false, Message: msg})
		return
	}

	_ = Failure(c, err)
}

// ParseUUIDParam reads a path parameter as a uuid. Malformed or nil values
// are InvalidArgument.
func ParseUUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apperr.InvalidArgument("invalid " + name)
	}
	return id, nil
}
