package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/anonto42/lovesignal/backend/internal/identity"
	"github.com/anonto42/lovesignal/backend/internal/identity/identitytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock starts in the recent past so issued tokens are neither expired nor issued in
// the future, and only moves when told to.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Now().Add(-10 * time.Minute).Truncate(time.Second)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestLocalProviderSignUpValidation(t *testing.T) {
	ctx := context.Background()
	p, _ := identitytest.NewProvider()

	_, err := p.SignUp(ctx, "ada@example.com", "12345")
	assert.ErrorIs(t, err, apperrors.ErrWeakPassword)

	_, err = p.SignUp(ctx, "  ", "secret123")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	creds, err := p.SignUp(ctx, "Ada@Example.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, creds.IdentityID)
	assert.NotEmpty(t, creds.Token)
	assert.False(t, creds.Anonymous)

	_, err = p.SignUp(ctx, "ada@example.com", "another123")
	assert.ErrorIs(t, err, apperrors.ErrEmailInUse)
}

func TestLocalProviderSignIn(t *testing.T) {
	ctx := context.Background()
	p, _ := identitytest.NewProvider()

	created, err := p.SignUp(ctx, "ada@example.com", "secret123")
	require.NoError(t, err)

	creds, err := p.SignIn(ctx, "ADA@example.com ", "secret123")
	require.NoError(t, err)
	assert.Equal(t, created.IdentityID, creds.IdentityID)

	_, err = p.SignIn(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = p.SignIn(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLocalProviderVerifyToken(t *testing.T) {
	ctx := context.Background()
	p, _ := identitytest.NewProvider()

	creds, err := p.SignUp(ctx, "ada@example.com", "secret123")
	require.NoError(t, err)

	claims, err := p.VerifyToken(ctx, creds.Token)
	require.NoError(t, err)
	assert.Equal(t, creds.IdentityID, claims.IdentityID)
	assert.False(t, claims.Anonymous)

	_, err = p.VerifyToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)

	other, _ := identitytest.NewProvider()
	foreign, err := other.SignUp(ctx, "eve@example.com", "secret123")
	require.NoError(t, err)
	_, err = p.VerifyToken(ctx, foreign.Token)
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestLocalProviderAnonymous(t *testing.T) {
	ctx := context.Background()
	p, _ := identitytest.NewProvider()

	creds, err := p.SignInAnonymously(ctx)
	require.NoError(t, err)
	assert.True(t, creds.Anonymous)

	claims, err := p.VerifyToken(ctx, creds.Token)
	require.NoError(t, err)
	assert.True(t, claims.Anonymous)
}

func TestLocalProviderSignOutRevokesEarlierTokens(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	p, _ := identitytest.NewProvider(identity.WithLocalClock(clock.Now))

	old, err := p.SignUp(ctx, "ada@example.com", "secret123")
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	require.NoError(t, p.SignOut(ctx, old.IdentityID))

	_, err = p.VerifyToken(ctx, old.Token)
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)

	clock.Advance(time.Second)
	fresh, err := p.SignIn(ctx, "ada@example.com", "secret123")
	require.NoError(t, err)
	_, err = p.VerifyToken(ctx, fresh.Token)
	assert.NoError(t, err)

	assert.ErrorIs(t, p.SignOut(ctx, "missing"), apperrors.ErrNotFound)
}

func TestLocalProviderDeleteIdentity(t *testing.T) {
	ctx := context.Background()
	p, accounts := identitytest.NewProvider()

	creds, err := p.SignUp(ctx, "ada@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, p.DeleteIdentity(ctx, creds.IdentityID))

	assert.Equal(t, 0, accounts.Len())
	assert.Equal(t, []string{creds.IdentityID}, accounts.Deleted())

	_, err = p.VerifyToken(ctx, creds.Token)
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestLocalProviderBackendFailure(t *testing.T) {
	ctx := context.Background()
	p, accounts := identitytest.NewProvider()

	accounts.FailNext(errors.New("connection refused"))
	_, err := p.SignUp(ctx, "ada@example.com", "secret123")
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Equal(t, "The service is temporarily unavailable, please try again.", apperrors.UserMessage(err))
}

func TestLocalProviderConcurrentSignUpSameEmail(t *testing.T) {
	ctx := context.Background()
	p, accounts := identitytest.NewProvider()

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.SignUp(ctx, "ada@example.com", "secret123")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrEmailInUse)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, accounts.Len())
}
