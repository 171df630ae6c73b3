package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

// Audit logs every state-changing request under /api/ with the acting
// staff member, so billing mutations can be attributed after the fact.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method == http.MethodGet || req.Method == http.MethodHead ||
				!strings.HasPrefix(req.URL.Path, "/api/") {
				return next(c)
			}

			err := next(c)

			rid, _ := c.Get("request_id").(string)
			ctx := req.Context()
			logger.Info().
				Str("type", "billing_audit").
				Str("request_id", rid).
				Str("staff_id", auth.UserIDFromContext(ctx)).
				Strs("roles", auth.RolesFromContext(ctx)).
				Str("action", methodToAction(req.Method, req.URL.Path)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Str("remote_ip", c.RealIP()).
				Msg("audit")

			return err
		}
	}
}

func methodToAction(method, path string) string {
	switch {
	case strings.HasSuffix(path, "/finalize"):
		return "finalize"
	case strings.HasSuffix(path, "/toggle-delete"):
		return "toggle_delete"
	case method == http.MethodPost:
		return "create"
	case method == http.MethodPut, method == http.MethodPatch:
		return "update"
	case method == http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
