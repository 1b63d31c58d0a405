package http

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// JWTMiddleware verifies bearer tokens signed with the shared secret. The
// token's "sub" claim carries the owner id and "is_superuser" gates the
// admin surface.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(secret),
		TokenLookup: "header:Authorization:Bearer ",
	})
}

// OwnerID extracts the authenticated owner id from the verified token.
func OwnerID(c echo.Context) (uuid.UUID, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "malformed claims")
	}
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "subject is not a valid user id")
	}
	return id, nil
}

// IsSuperuser reports whether the verified token carries the superuser flag.
func IsSuperuser(c echo.Context) bool {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	flag, _ := claims["is_superuser"].(bool)
	return flag
}

// RequireSuperuser rejects non-superuser access to the admin surface.
func RequireSuperuser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !IsSuperuser(c) {
			return echo.NewHTTPError(http.StatusForbidden, "superuser access required")
		}
		return next(c)
	}
}
