package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/anonto42/lovesignal/backend/internal/middleware"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/anonto42/lovesignal/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// httpError maps a domain error onto the status code clients see.
func httpError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyExists), errors.Is(err, apperrors.ErrEmailInUse):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, apperrors.ErrSelfReference),
		errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrWeakPassword):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrInvalidCredentials), errors.Is(err, apperrors.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	return echo.NewHTTPError(status, apperrors.UserMessage(err))
}

// currentIdentity returns the authenticated identity or a 401.
func currentIdentity(c echo.Context) (string, error) {
	id := middleware.IdentityID(c)
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	return id, nil
}

// sessionContext scopes a fresh profile cache to the request.
func sessionContext(c echo.Context, profiles repositories.ProfileRepository) context.Context {
	ctx := c.Request().Context()
	return services.WithProfileCache(ctx, services.NewProfileCache(profiles, nil))
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}
