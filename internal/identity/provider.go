package identity

import (
	"context"
	"unicode/utf8"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
)

// MinPasswordLength is the shortest password any provider accepts.
const MinPasswordLength = 6

// Credentials identify a signed-in principal and carry the bearer token clients present.
type Credentials struct {
	IdentityID string `json:"identity_id"`
	Token      string `json:"token"`
	Anonymous  bool   `json:"anonymous"`
}

// Claims is what a verified token says about its bearer.
type Claims struct {
	IdentityID string
	Anonymous  bool
}

// Provider issues and verifies identities. Failures are reported as apperrors kinds
// (ErrInvalidCredentials, ErrEmailInUse, ErrWeakPassword, ErrUnauthenticated), never as
// vendor error codes.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (Credentials, error)
	SignIn(ctx context.Context, email, password string) (Credentials, error)
	SignInAnonymously(ctx context.Context) (Credentials, error)
	SignOut(ctx context.Context, identityID string) error
	VerifyToken(ctx context.Context, token string) (Claims, error)
	DeleteIdentity(ctx context.Context, identityID string) error
}

func checkPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperrors.Wrap(apperrors.ErrWeakPassword, "password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
