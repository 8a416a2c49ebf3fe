package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-operator-secret")

func signToken(t *testing.T, roles []string, secret []byte) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "op-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func invoke(t *testing.T, mw echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	return rec, err
}

func TestOperatorJWT_ValidToken(t *testing.T) {
	token := signToken(t, []string{"operator"}, testSecret)
	_, err := invoke(t, OperatorJWT(testSecret), "Bearer "+token)
	if err != nil {
		t.Fatalf("expected valid token accepted, got %v", err)
	}
}

func TestOperatorJWT_MissingHeader(t *testing.T) {
	_, err := invoke(t, OperatorJWT(testSecret), "")
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestOperatorJWT_WrongSecret(t *testing.T) {
	token := signToken(t, []string{"operator"}, []byte("other-secret"))
	_, err := invoke(t, OperatorJWT(testSecret), "Bearer "+token)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(rolesKey, []string{"viewer"})

	err := RequireRole("operator", "admin")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}

	c.Set(rolesKey, []string{"operator"})
	if err := RequireRole("operator")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c); err != nil {
		t.Fatalf("expected operator allowed, got %v", err)
	}
}
