package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/store"
)

// ProfileRepository defines the interface for profile and username reservation operations
type ProfileRepository interface {
	GetProfile(ctx context.Context, identityID string) (*models.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	CreateProfile(ctx context.Context, profile models.Profile) error
}

// StoreProfileRepository implements ProfileRepository on the document store
type StoreProfileRepository struct {
	store store.Store
}

// NewStoreProfileRepository creates a new StoreProfileRepository
func NewStoreProfileRepository(s store.Store) *StoreProfileRepository {
	return &StoreProfileRepository{store: s}
}

// GetProfile retrieves a profile by identity id
func (r *StoreProfileRepository) GetProfile(ctx context.Context, identityID string) (*models.Profile, error) {
	doc, err := r.store.Get(ctx, store.CollectionProfiles, identityID)
	if err != nil {
		return nil, err
	}
	profile := models.ProfileFromDocument(doc)
	return &profile, nil
}

// GetProfileByUsername resolves a username through its reservation record
func (r *StoreProfileRepository) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	username = models.NormalizeUsername(username)
	if username == "" {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "empty username")
	}
	doc, err := r.store.Get(ctx, store.CollectionUsernames, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "no user named %q", username)
		}
		return nil, err
	}
	identityID, _ := doc.Fields[models.FieldIdentityID].(string)
	if identityID == "" {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "reservation %q has no identity", username)
	}
	return r.GetProfile(ctx, identityID)
}

// UsernameTaken reports whether a reservation exists. It is only a fast path; the
// reservation itself is made by the conditional create in CreateProfile.
func (r *StoreProfileRepository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := r.store.Get(ctx, store.CollectionUsernames, models.NormalizeUsername(username))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperrors.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// CreateProfile writes the profile and the username reservation as one atomic batch. Both
// are conditional creates, so a concurrent registration of the same username fails with
// ErrAlreadyExists and leaves nothing behind.
func (r *StoreProfileRepository) CreateProfile(ctx context.Context, profile models.Profile) error {
	profile.Username = models.NormalizeUsername(profile.Username)
	return r.store.Batch(ctx, []store.Op{
		{Kind: store.OpCreate, Collection: store.CollectionProfiles, ID: profile.IdentityID, Fields: profile.Fields()},
		{Kind: store.OpCreate, Collection: store.CollectionUsernames, ID: profile.Username, Fields: models.UsernameReservationFields(profile.IdentityID)},
	})
}
