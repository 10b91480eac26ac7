package services

import (
	"context"
	"errors"
	"sync"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
)

// ProfileCache memoizes profile lookups for one session. Entries never expire because
// profiles are immutable after registration; if profile editing is ever added this cache
// needs invalidation. Each session must own its instance.
type ProfileCache struct {
	profiles repositories.ProfileRepository

	mu      sync.Mutex
	entries map[string]models.Profile
}

// NewProfileCache creates a cache seeded with the caller's own profile, when known.
func NewProfileCache(profiles repositories.ProfileRepository, self *models.Profile) *ProfileCache {
	c := &ProfileCache{
		profiles: profiles,
		entries:  make(map[string]models.Profile),
	}
	if self != nil {
		c.entries[self.IdentityID] = *self
	}
	return c
}

// Resolve returns the profile of identityID, reading through to the repository on a miss.
// Identities without a profile resolve to a placeholder that is not cached, since the
// profile may still be written later.
func (c *ProfileCache) Resolve(ctx context.Context, identityID string) (models.Profile, error) {
	c.mu.Lock()
	profile, ok := c.entries[identityID]
	c.mu.Unlock()
	if ok {
		return profile, nil
	}

	p, err := c.profiles.GetProfile(ctx, identityID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return models.PlaceholderProfile(identityID), nil
		}
		return models.Profile{}, err
	}

	c.mu.Lock()
	c.entries[identityID] = *p
	c.mu.Unlock()
	return *p, nil
}

// Username is Resolve reduced to the username, falling back to the placeholder on errors.
func (c *ProfileCache) Username(ctx context.Context, identityID string) string {
	profile, err := c.Resolve(ctx, identityID)
	if err != nil {
		return models.UnknownUsername
	}
	return profile.Username
}

// Len returns the number of cached profiles.
func (c *ProfileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type profileCacheKey struct{}

// WithProfileCache scopes cache to everything done under ctx, typically one request or one
// streaming connection.
func WithProfileCache(ctx context.Context, cache *ProfileCache) context.Context {
	return context.WithValue(ctx, profileCacheKey{}, cache)
}

// profileCacheFrom returns the cache carried by ctx, or a fresh one for this call only.
func profileCacheFrom(ctx context.Context, profiles repositories.ProfileRepository) *ProfileCache {
	if c, ok := ctx.Value(profileCacheKey{}).(*ProfileCache); ok && c != nil {
		return c
	}
	return NewProfileCache(profiles, nil)
}
