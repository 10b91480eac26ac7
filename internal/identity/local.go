package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// LocalProvider keeps accounts in PostgreSQL and issues HS256 tokens itself.
type LocalProvider struct {
	accounts repositories.AccountRepository
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	cost     int
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithLocalClock replaces the clock used to stamp and revoke tokens.
func WithLocalClock(now func() time.Time) LocalOption {
	return func(p *LocalProvider) { p.now = now }
}

// WithHashCost sets the bcrypt cost of stored passwords.
func WithHashCost(cost int) LocalOption {
	return func(p *LocalProvider) { p.cost = cost }
}

func NewLocalProvider(accounts repositories.AccountRepository, secret string, ttl time.Duration, opts ...LocalOption) *LocalProvider {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	p := &LocalProvider{
		accounts: accounts,
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (Credentials, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Credentials{}, apperrors.Wrap(apperrors.ErrValidation, "email is required")
	}
	if err := checkPassword(password); err != nil {
		return Credentials{}, err
	}

	_, err := p.accounts.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		return Credentials{}, apperrors.ErrEmailInUse
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Credentials{}, apperrors.Unavailable("lookup account", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return Credentials{}, err
	}
	account := &models.Account{
		IdentityID:   uuid.NewString(),
		Email:        &email,
		PasswordHash: string(hashedPassword),
	}
	if err := p.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Credentials{}, apperrors.ErrEmailInUse
		}
		return Credentials{}, apperrors.Unavailable("create account", err)
	}
	return p.issue(account)
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	account, err := p.accounts.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Credentials{}, apperrors.ErrInvalidCredentials
		}
		return Credentials{}, apperrors.Unavailable("lookup account", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Credentials{}, apperrors.ErrInvalidCredentials
	}
	return p.issue(account)
}

func (p *LocalProvider) SignInAnonymously(ctx context.Context) (Credentials, error) {
	account := &models.Account{
		IdentityID: uuid.NewString(),
		Anonymous:  true,
	}
	if err := p.accounts.CreateAccount(ctx, account); err != nil {
		return Credentials{}, apperrors.Unavailable("create account", err)
	}
	return p.issue(account)
}

// SignOut invalidates every token issued to the identity so far.
func (p *LocalProvider) SignOut(ctx context.Context, identityID string) error {
	err := p.accounts.RevokeTokens(ctx, identityID, p.now().Truncate(time.Second))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.ErrNotFound, "no identity %q", identityID)
	}
	if err != nil {
		return apperrors.Unavailable("revoke tokens", err)
	}
	return nil
}

func (p *LocalProvider) VerifyToken(ctx context.Context, token string) (Claims, error) {
	claims := &models.JwtCustomClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, apperrors.Wrap(apperrors.ErrUnauthenticated, "invalid or expired token")
	}

	account, err := p.accounts.GetAccountByIdentityID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Claims{}, apperrors.Wrap(apperrors.ErrUnauthenticated, "identity no longer exists")
		}
		return Claims{}, apperrors.Unavailable("lookup account", err)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.Before(account.TokensValidAfter) {
		return Claims{}, apperrors.Wrap(apperrors.ErrUnauthenticated, "token has been revoked")
	}
	return Claims{IdentityID: account.IdentityID, Anonymous: account.Anonymous}, nil
}

func (p *LocalProvider) DeleteIdentity(ctx context.Context, identityID string) error {
	if err := p.accounts.DeleteAccount(ctx, identityID); err != nil {
		return apperrors.Unavailable("delete account", err)
	}
	return nil
}

func (p *LocalProvider) issue(account *models.Account) (Credentials, error) {
	now := p.now()
	claims := &models.JwtCustomClaims{
		IdentityID: account.IdentityID,
		Anonymous:  account.Anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.IdentityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		IdentityID: account.IdentityID,
		Token:      signed,
		Anonymous:  account.Anonymous,
	}, nil
}
