package services

import (
	"context"
	"testing"

	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")

	self := &models.Profile{IdentityID: "id-me", Username: "me"}
	cache := NewProfileCache(f.profiles, self)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, "me", cache.Username(ctx, "id-me"))

	p, err := cache.Resolve(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, 2, cache.Len())

	assert.Equal(t, models.UnknownUsername, cache.Username(ctx, "id-later"))
	assert.Equal(t, 2, cache.Len(), "placeholders are not cached")

	f.user(t, "later")
	assert.Equal(t, "later", cache.Username(ctx, "id-later"))
}

func TestProfileCacheTravelsInContext(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	cache := NewProfileCache(f.profiles, nil)
	ctx := WithProfileCache(context.Background(), cache)

	assert.Same(t, cache, profileCacheFrom(ctx, f.profiles))
	assert.NotSame(t, cache, profileCacheFrom(context.Background(), f.profiles))
}
