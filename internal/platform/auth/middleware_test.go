package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/apperr"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return tokenStr
}

func validClaims(sub string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "clinic-idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{RoleBilling},
	}
}

func runJWT(t *testing.T, cfg JWTConfig, header string) (context.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var seen context.Context
	err := JWTMiddleware(cfg)(func(c echo.Context) error {
		seen = c.Request().Context()
		return c.NoContent(http.StatusOK)
	})(c)
	return seen, err
}

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected *echo.HTTPError, got %T", err)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "")
	assertUnauthorized(t, err)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	for _, header := range []string{"Token abc123", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"} {
		t.Run(header, func(t *testing.T) {
			_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, header)
			assertUnauthorized(t, err)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	staff := uuid.New()
	token := createTestToken(t, validClaims(staff.String()), testSigningKey)

	ctx, err := runJWT(t, JWTConfig{SigningKey: testSigningKey, Issuer: "clinic-idp"}, "Bearer "+token)
	require.NoError(t, err)

	actor, err := ActorFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, staff, actor)
	assert.Equal(t, []string{RoleBilling}, RolesFromContext(ctx))
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token := createTestToken(t, validClaims(uuid.NewString()), []byte("another-key"))
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+token)
	assertUnauthorized(t, err)
}

func TestJWTMiddleware_Expired(t *testing.T) {
	claims := validClaims(uuid.NewString())
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+createTestToken(t, claims, testSigningKey))
	assertUnauthorized(t, err)
}

func TestJWTMiddleware_WrongIssuer(t *testing.T) {
	token := createTestToken(t, validClaims(uuid.NewString()), testSigningKey)
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey, Issuer: "someone-else"}, "Bearer "+token)
	assertUnauthorized(t, err)
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	var actor uuid.UUID
	err := DevAuthMiddleware()(func(c echo.Context) error {
		var err error
		actor, err = ActorFromContext(c.Request().Context())
		return err
	})(c)
	require.NoError(t, err)
	assert.Equal(t, DevStaffID, actor)
}

func TestActorFromContext(t *testing.T) {
	_, err := ActorFromContext(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = ActorFromContext(WithUser(context.Background(), "dev-user", nil))
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = ActorFromContext(WithUser(context.Background(), uuid.Nil.String(), nil))
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	id := uuid.New()
	got, err := ActorFromContext(WithUser(context.Background(), id.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
