package identity

import (
	"errors"
	"net/http"
	"testing"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestMapFirebaseError(t *testing.T) {
	tests := []struct {
		message string
		want    error
	}{
		{"EMAIL_EXISTS", apperrors.ErrEmailInUse},
		{"WEAK_PASSWORD : Password should be at least 6 characters", apperrors.ErrWeakPassword},
		{"INVALID_PASSWORD", apperrors.ErrInvalidCredentials},
		{"EMAIL_NOT_FOUND", apperrors.ErrInvalidCredentials},
		{"INVALID_LOGIN_CREDENTIALS", apperrors.ErrInvalidCredentials},
		{"INVALID_EMAIL", apperrors.ErrValidation},
		{"QUOTA_EXCEEDED", apperrors.ErrStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			err := mapFirebaseError("sign up", &googleapi.Error{Code: http.StatusBadRequest, Message: tt.message})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.ErrorIs(t, mapFirebaseError("verify", errors.New("dial tcp: timeout")), apperrors.ErrStoreUnavailable)
}
