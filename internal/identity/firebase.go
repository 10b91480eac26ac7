package identity

import (
	"context"
	"errors"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
)

// FirebaseProvider delegates identities to Firebase Authentication. Password and anonymous
// sign-in go through the Identity Toolkit REST API, which is what issues ID tokens; token
// verification, revocation and deletion use the admin auth client.
type FirebaseProvider struct {
	auth    *auth.Client
	toolkit *identitytoolkit.Service
}

func NewFirebaseProvider(authClient *auth.Client, toolkit *identitytoolkit.Service) *FirebaseProvider {
	return &FirebaseProvider{auth: authClient, toolkit: toolkit}
}

func (p *FirebaseProvider) SignUp(ctx context.Context, email, password string) (Credentials, error) {
	if err := checkPassword(password); err != nil {
		return Credentials{}, err
	}
	resp, err := p.toolkit.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    strings.TrimSpace(email),
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return Credentials{}, mapFirebaseError("sign up", err)
	}
	return Credentials{IdentityID: resp.LocalId, Token: resp.IdToken}, nil
}

func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	resp, err := p.toolkit.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             strings.TrimSpace(email),
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return Credentials{}, mapFirebaseError("sign in", err)
	}
	return Credentials{IdentityID: resp.LocalId, Token: resp.IdToken}, nil
}

// SignInAnonymously creates a user with no email or password.
func (p *FirebaseProvider) SignInAnonymously(ctx context.Context) (Credentials, error) {
	resp, err := p.toolkit.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{}).Context(ctx).Do()
	if err != nil {
		return Credentials{}, mapFirebaseError("anonymous sign in", err)
	}
	return Credentials{IdentityID: resp.LocalId, Token: resp.IdToken, Anonymous: true}, nil
}

func (p *FirebaseProvider) SignOut(ctx context.Context, identityID string) error {
	if err := p.auth.RevokeRefreshTokens(ctx, identityID); err != nil {
		return mapFirebaseError("sign out", err)
	}
	return nil
}

func (p *FirebaseProvider) VerifyToken(ctx context.Context, token string) (Claims, error) {
	verified, err := p.auth.VerifyIDTokenAndCheckRevoked(ctx, token)
	if err != nil {
		return Claims{}, apperrors.Wrap(apperrors.ErrUnauthenticated, "invalid or expired ID token")
	}
	return Claims{
		IdentityID: verified.UID,
		Anonymous:  verified.Firebase.SignInProvider == "anonymous",
	}, nil
}

func (p *FirebaseProvider) DeleteIdentity(ctx context.Context, identityID string) error {
	if err := p.auth.DeleteUser(ctx, identityID); err != nil {
		if auth.IsUserNotFound(err) {
			return nil
		}
		return mapFirebaseError("delete identity", err)
	}
	return nil
}

// mapFirebaseError translates Identity Toolkit and admin SDK failures into error kinds.
func mapFirebaseError(op string, err error) error {
	if auth.IsEmailAlreadyExists(err) {
		return apperrors.ErrEmailInUse
	}
	if auth.IsUserNotFound(err) {
		return apperrors.Wrap(apperrors.ErrNotFound, "%s: no such identity", op)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		switch {
		case strings.Contains(msg, "EMAIL_EXISTS"):
			return apperrors.ErrEmailInUse
		case strings.Contains(msg, "WEAK_PASSWORD"):
			return apperrors.Wrap(apperrors.ErrWeakPassword, "password must be at least %d characters", MinPasswordLength)
		case strings.Contains(msg, "INVALID_PASSWORD"),
			strings.Contains(msg, "EMAIL_NOT_FOUND"),
			strings.Contains(msg, "INVALID_LOGIN_CREDENTIALS"),
			strings.Contains(msg, "USER_DISABLED"):
			return apperrors.ErrInvalidCredentials
		case strings.Contains(msg, "INVALID_EMAIL"), strings.Contains(msg, "MISSING_PASSWORD"):
			return apperrors.Wrap(apperrors.ErrValidation, "%s: email or password is malformed", op)
		}
	}
	return apperrors.Unavailable(op, err)
}
