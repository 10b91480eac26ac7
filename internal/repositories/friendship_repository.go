package repositories

import (
	"context"

	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/store"
)

// ContactRepository defines the interface for contact data operations
type ContactRepository interface {
	CreateContact(ctx context.Context, contact models.Contact) error
	GetContact(ctx context.Context, id string) (*models.Contact, error)
	UpdateContactStatus(ctx context.Context, id string, status models.ContactStatus) error
	DeleteContact(ctx context.Context, id string) error
	GetUserContacts(ctx context.Context, identityID string, status models.ContactStatus) ([]models.Contact, error)
	GetIncomingRequests(ctx context.Context, identityID string) ([]models.Contact, error)
	GetOutgoingRequests(ctx context.Context, identityID string) ([]models.Contact, error)
	SubscribeUserContacts(ctx context.Context, identityID string, fn func(store.Snapshot)) (store.Subscription, error)
}

// StoreContactRepository implements ContactRepository on the document store
type StoreContactRepository struct {
	store store.Store
}

// NewStoreContactRepository creates a new StoreContactRepository
func NewStoreContactRepository(s store.Store) *StoreContactRepository {
	return &StoreContactRepository{store: s}
}

// CreateContact creates the record under its pair key. It fails with ErrAlreadyExists when
// the pair already has a record, whatever its status.
func (r *StoreContactRepository) CreateContact(ctx context.Context, contact models.Contact) error {
	_, err := r.store.Create(ctx, store.CollectionContacts, contact.ID, contact.Fields())
	return err
}

// GetContact retrieves a contact by its pair key
func (r *StoreContactRepository) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	doc, err := r.store.Get(ctx, store.CollectionContacts, id)
	if err != nil {
		return nil, err
	}
	contact := models.ContactFromDocument(doc)
	return &contact, nil
}

// UpdateContactStatus updates the status of a contact
func (r *StoreContactRepository) UpdateContactStatus(ctx context.Context, id string, status models.ContactStatus) error {
	return r.store.Update(ctx, store.CollectionContacts, id, store.Fields{
		models.FieldStatus:    string(status),
		models.FieldUpdatedAt: store.ServerTimestamp,
	})
}

// DeleteContact deletes a contact record
func (r *StoreContactRepository) DeleteContact(ctx context.Context, id string) error {
	return r.store.Delete(ctx, store.CollectionContacts, id)
}

// GetUserContacts retrieves every contact of a user in the given status
func (r *StoreContactRepository) GetUserContacts(ctx context.Context, identityID string, status models.ContactStatus) ([]models.Contact, error) {
	q := store.Query{}.
		WhereContains(models.FieldParticipants, identityID).
		Where(models.FieldStatus, string(status))
	return r.list(ctx, q)
}

// GetIncomingRequests retrieves pending requests addressed to the user
func (r *StoreContactRepository) GetIncomingRequests(ctx context.Context, identityID string) ([]models.Contact, error) {
	q := store.Query{}.
		Where(models.FieldRequesteeID, identityID).
		Where(models.FieldStatus, string(models.ContactStatusPending))
	return r.list(ctx, q)
}

// GetOutgoingRequests retrieves pending requests the user sent
func (r *StoreContactRepository) GetOutgoingRequests(ctx context.Context, identityID string) ([]models.Contact, error) {
	q := store.Query{}.
		Where(models.FieldRequesterID, identityID).
		Where(models.FieldStatus, string(models.ContactStatusPending))
	return r.list(ctx, q)
}

// SubscribeUserContacts listens to every contact record the user participates in
func (r *StoreContactRepository) SubscribeUserContacts(ctx context.Context, identityID string, fn func(store.Snapshot)) (store.Subscription, error) {
	q := store.Query{}.WhereContains(models.FieldParticipants, identityID)
	return r.store.Subscribe(ctx, store.CollectionContacts, q, fn)
}

func (r *StoreContactRepository) list(ctx context.Context, q store.Query) ([]models.Contact, error) {
	docs, err := r.store.Query(ctx, store.CollectionContacts, q)
	if err != nil {
		return nil, err
	}
	contacts := make([]models.Contact, 0, len(docs))
	for _, doc := range docs {
		contacts = append(contacts, models.ContactFromDocument(doc))
	}
	return contacts, nil
}
