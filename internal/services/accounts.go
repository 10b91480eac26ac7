package services

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/anonto42/lovesignal/backend/internal/identity"
	"github.com/anonto42/lovesignal/backend/internal/metrics"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// AccountService registers identities and signs them in and out.
type AccountService struct {
	provider identity.Provider
	profiles repositories.ProfileRepository
	validate *validator.Validate
	logger   *zap.Logger
}

func NewAccountService(provider identity.Provider, profiles repositories.ProfileRepository, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		provider: provider,
		profiles: profiles,
		validate: validator.New(),
		logger:   logger.Named("accounts"),
	}
}

// Register creates an identity and claims username for it. Exactly one of several
// concurrent registrations of the same username succeeds; the losers get ErrAlreadyExists
// and their freshly created identities are deleted again.
func (s *AccountService) Register(ctx context.Context, email, password, username string) (_ *models.Profile, _ identity.Credentials, err error) {
	defer func() { metrics.RegistrationsTotal.WithLabelValues(metrics.Result(err)).Inc() }()

	username = models.NormalizeUsername(username)
	if utf8.RuneCountInString(username) < models.MinUsernameLength {
		return nil, identity.Credentials{}, apperrors.Wrap(apperrors.ErrValidation, "username must be at least %d characters", models.MinUsernameLength)
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, identity.Credentials{}, apperrors.Wrap(apperrors.ErrValidation, "a valid email is required")
	}

	taken, err := s.profiles.UsernameTaken(ctx, username)
	if err != nil {
		return nil, identity.Credentials{}, err
	}
	if taken {
		return nil, identity.Credentials{}, apperrors.Wrap(apperrors.ErrAlreadyExists, "username %q is taken", username)
	}

	creds, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		return nil, identity.Credentials{}, err
	}

	profile := models.Profile{IdentityID: creds.IdentityID, Username: username, Email: email}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		s.compensate(ctx, creds.IdentityID, err)
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, identity.Credentials{}, apperrors.Wrap(apperrors.ErrAlreadyExists, "username %q is taken", username)
		}
		return nil, identity.Credentials{}, err
	}

	created, err := s.profiles.GetProfile(ctx, creds.IdentityID)
	if err != nil {
		created = &profile
	}
	s.logger.Info("registered", zap.String("identity", creds.IdentityID), zap.String("username", username))
	return created, creds, nil
}

// compensate removes an identity whose profile could not be written.
func (s *AccountService) compensate(ctx context.Context, identityID string, cause error) {
	s.logger.Warn("profile write failed, deleting identity",
		zap.String("identity", identityID), zap.Error(cause))
	if err := s.provider.DeleteIdentity(context.WithoutCancel(ctx), identityID); err != nil {
		s.logger.Error("compensating identity delete failed",
			zap.String("identity", identityID), zap.Error(err))
	}
}

// SignIn authenticates with email and password. The profile is nil for identities that
// never completed registration.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (identity.Credentials, *models.Profile, error) {
	creds, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return identity.Credentials{}, nil, err
	}
	profile, err := s.CurrentProfile(ctx, creds.IdentityID)
	if err != nil {
		return identity.Credentials{}, nil, err
	}
	return creds, profile, nil
}

func (s *AccountService) SignInAnonymously(ctx context.Context) (identity.Credentials, error) {
	creds, err := s.provider.SignInAnonymously(ctx)
	if err != nil {
		return identity.Credentials{}, err
	}
	s.logger.Debug("anonymous identity issued", zap.String("identity", creds.IdentityID))
	return creds, nil
}

func (s *AccountService) SignOut(ctx context.Context, identityID string) error {
	return s.provider.SignOut(ctx, identityID)
}

// VerifyToken verifies a bearer token.
func (s *AccountService) VerifyToken(ctx context.Context, token string) (identity.Claims, error) {
	return s.provider.VerifyToken(ctx, token)
}

// CurrentProfile returns the profile of identityID, or nil if it has none.
func (s *AccountService) CurrentProfile(ctx context.Context, identityID string) (*models.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, identityID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return profile, err
}
