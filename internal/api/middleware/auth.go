package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/service"
)

// PrincipalKey is the echo context key holding the domain.Principal set by Auth.
const PrincipalKey = "principal"

// Auth admits requests carrying a valid admin bearer token and stores the
// caller under PrincipalKey.
func Auth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scheme, token, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed bearer token")
			}

			principal, err := service.ParseAdminToken(token, jwtSecret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrInvalidToken.Error())
			}
			c.Set(PrincipalKey, principal)

			return next(c)
		}
	}
}

// PrincipalFrom returns the caller stored by Auth.
func PrincipalFrom(c echo.Context) (domain.Principal, bool) {
	p, ok := c.Get(PrincipalKey).(domain.Principal)
	return p, ok
}
