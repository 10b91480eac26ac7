package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{apperrors.Wrap(apperrors.ErrNotFound, "x"), http.StatusNotFound},
		{apperrors.ErrAlreadyExists, http.StatusConflict},
		{apperrors.ErrEmailInUse, http.StatusConflict},
		{apperrors.ErrPermissionDenied, http.StatusForbidden},
		{apperrors.ErrSelfReference, http.StatusBadRequest},
		{apperrors.ErrValidation, http.StatusBadRequest},
		{apperrors.ErrWeakPassword, http.StatusBadRequest},
		{apperrors.ErrInvalidCredentials, http.StatusUnauthorized},
		{apperrors.ErrUnauthenticated, http.StatusUnauthorized},
		{apperrors.Unavailable("get", errors.New("eof")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
		{echo.NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot},
	}
	for _, tt := range tests {
		var he *echo.HTTPError
		require.True(t, errors.As(httpError(tt.err), &he))
		assert.Equal(t, tt.code, he.Code, tt.err.Error())
	}
}
