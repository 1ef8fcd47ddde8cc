package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/access-control/internal/core/domain"
)

// RBAC admits an authenticated caller holding one of roles. It must run
// after Auth.
func RBAC(roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok || !p.HasRole(roles...) {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}
