package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/anonto42/lovesignal/backend/internal/identity"
	"github.com/labstack/echo/v4"
)

// Context keys set by IdentityMiddleware.
const (
	IdentityIDKey = "identityID"
	ClaimsKey     = "identityClaims"
	TokenKey      = "identityToken"
)

// TokenVerifier checks a bearer token and returns what it proves.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (identity.Claims, error)
}

// IdentityMiddleware creates an Echo middleware that verifies bearer tokens with the
// configured identity provider. Websocket upgrades may pass the token as the access_token
// query parameter, since browsers cannot set headers on them.
func IdentityMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c.Request())
			if err != nil {
				return err
			}

			claims, err := verifier.VerifyToken(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, apperrors.ErrStoreUnavailable) {
					return echo.NewHTTPError(http.StatusServiceUnavailable, apperrors.UserMessage(err))
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(IdentityIDKey, claims.IdentityID)
			c.Set(ClaimsKey, claims)
			c.Set(TokenKey, token)
			return next(c)
		}
	}
}

// IdentityID returns the identity stored by IdentityMiddleware.
func IdentityID(c echo.Context) string {
	id, _ := c.Get(IdentityIDKey).(string)
	return id
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, nil
			}
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header must be in Bearer format")
	}
	return parts[1], nil
}
