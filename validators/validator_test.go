package validators

import (
	"errors"
	"net/http"
	"testing"

	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.Validate(&models.RegisterRequest{Email: "ada@example.com", Password: "secret123", Username: "ada"}))

	err := v.Validate(&models.RegisterRequest{Email: "nope", Password: "123", Username: "ada"})
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Equal(t, "email must be a valid email; password must be at least 6 characters", he.Message)

	err = v.Validate(&models.SendSignalRequest{Target: "email", Recipient: "bob", Message: "hi", Type: "praise"})
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "target must be one of username contact identity", he.Message)
}
