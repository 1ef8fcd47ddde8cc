package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// APIKeyHeader carries the shared device secret.
const APIKeyHeader = "X-API-Key"

// APIKey admits requests whose X-API-Key header equals key. Anything else is
// handed to reject, which writes the response. An empty key rejects every
// request.
func APIKey(key string, reject echo.HandlerFunc) echo.MiddlewareFunc {
	want := []byte(key)
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + APIKeyHeader,
		Validator: func(got string, _ echo.Context) (bool, error) {
			return len(want) > 0 && subtle.ConstantTimeCompare([]byte(got), want) == 1, nil
		},
		ErrorHandler: func(_ error, c echo.Context) error {
			return reject(c)
		},
	})
}
