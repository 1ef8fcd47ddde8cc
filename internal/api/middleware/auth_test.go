package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/service"
)

func adminClaims(exp time.Time) service.AdminClaims {
	c := service.AdminClaims{Username: "root", Role: domain.RoleAdmin}
	if !exp.IsZero() {
		c.ExpiresAt = jwt.NewNumericDate(exp)
	}
	return c
}

func signed(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func runAuth(t *testing.T, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := Auth("secret")(func(c echo.Context) error {
		called = true
		p, ok := PrincipalFrom(c)
		if !ok || p.Username != "root" || p.Role != domain.RoleAdmin {
			t.Fatalf("principal not set: %+v %v", p, ok)
		}
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, called
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tok := signed(t, adminClaims(time.Now().Add(time.Hour)), jwt.SigningMethodHS256, []byte("secret"))

	rec, called := runAuth(t, "Bearer "+tok)
	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_IssuedTokenAccepted(t *testing.T) {
	svc, err := service.NewAdminAuthService("root", "pw", "secret", time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tok, err := svc.Login(context.Background(), "root", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, called := runAuth(t, "bearer "+tok); !called {
		t.Fatal("token issued by login was refused")
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	hour := time.Now().Add(time.Hour)
	expired := signed(t, adminClaims(time.Now().Add(-time.Minute)), jwt.SigningMethodHS256, []byte("secret"))
	noExp := signed(t, adminClaims(time.Time{}), jwt.SigningMethodHS256, []byte("secret"))
	otherKey := signed(t, adminClaims(hour), jwt.SigningMethodHS256, []byte("not-the-secret"))
	hs512 := signed(t, adminClaims(hour), jwt.SigningMethodHS512, []byte("secret"))
	anonymous := signed(t, service.AdminClaims{
		Role:             domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(hour)},
	}, jwt.SigningMethodHS256, []byte("secret"))

	cases := map[string]string{
		"missing header":  "",
		"wrong scheme":    "Token abc",
		"empty token":     "Bearer ",
		"garbage":         "Bearer not-a-token",
		"expired":         "Bearer " + expired,
		"no expiry":       "Bearer " + noExp,
		"wrong key":       "Bearer " + otherKey,
		"wrong algorithm": "Bearer " + hs512,
		"no username":     "Bearer " + anonymous,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, called := runAuth(t, header)
			if called {
				t.Fatal("should not reach next")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}
