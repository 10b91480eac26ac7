package repositories

import (
	"context"

	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/store"
)

// SignalRepository defines the interface for signal ledger operations
type SignalRepository interface {
	CreateSignal(ctx context.Context, signal models.Signal) (string, error)
	GetSignal(ctx context.Context, id string) (*models.Signal, error)
	UpdateSignal(ctx context.Context, id string, patch models.SignalPatch) error
	DeleteSignal(ctx context.Context, id string) error
	GetSentSignals(ctx context.Context, identityID string) ([]models.Signal, error)
	GetReceivedSignals(ctx context.Context, identityID string) ([]models.Signal, error)
	SubscribeSent(ctx context.Context, identityID string, fn func(store.Snapshot)) (store.Subscription, error)
	SubscribeReceived(ctx context.Context, identityID string, fn func(store.Snapshot)) (store.Subscription, error)
}

// StoreSignalRepository implements SignalRepository on the document store
type StoreSignalRepository struct {
	store store.Store
}

// NewStoreSignalRepository creates a new StoreSignalRepository
func NewStoreSignalRepository(s store.Store) *StoreSignalRepository {
	return &StoreSignalRepository{store: s}
}

// CreateSignal appends a signal under a store-allocated id
func (r *StoreSignalRepository) CreateSignal(ctx context.Context, signal models.Signal) (string, error) {
	return r.store.Create(ctx, store.CollectionSignals, "", signal.Fields())
}

// GetSignal retrieves a signal by ID
func (r *StoreSignalRepository) GetSignal(ctx context.Context, id string) (*models.Signal, error) {
	doc, err := r.store.Get(ctx, store.CollectionSignals, id)
	if err != nil {
		return nil, err
	}
	signal := models.SignalFromDocument(doc)
	return &signal, nil
}

// UpdateSignal applies the non-nil fields of patch
func (r *StoreSignalRepository) UpdateSignal(ctx context.Context, id string, patch models.SignalPatch) error {
	fields := store.Fields{models.FieldUpdatedAt: store.ServerTimestamp}
	if patch.Message != nil {
		fields[models.FieldMessage] = *patch.Message
	}
	if patch.Type != nil {
		fields[models.FieldType] = *patch.Type
	}
	if patch.RecipientID != nil {
		fields[models.FieldRecipientID] = *patch.RecipientID
	}
	return r.store.Update(ctx, store.CollectionSignals, id, fields)
}

// DeleteSignal deletes a signal by ID
func (r *StoreSignalRepository) DeleteSignal(ctx context.Context, id string) error {
	return r.store.Delete(ctx, store.CollectionSignals, id)
}

// GetSentSignals retrieves signals sent by the user, newest first
func (r *StoreSignalRepository) GetSentSignals(ctx context.Context, identityID string) ([]models.Signal, error) {
	return r.list(ctx, sentQuery(identityID))
}

// GetReceivedSignals retrieves signals received by the user, newest first
func (r *StoreSignalRepository) GetReceivedSignals(ctx context.Context, identityID string) ([]models.Signal, error) {
	return r.list(ctx, receivedQuery(identityID))
}

func (r *StoreSignalRepository) SubscribeSent(ctx context.Context, identityID string, fn func(store.Snapshot)) (store.Subscription, error) {
	return r.store.Subscribe(ctx, store.CollectionSignals, store.Query{}.Where(models.FieldSenderID, identityID), fn)
}

func (r *StoreSignalRepository) SubscribeReceived(ctx context.Context, identityID string, fn func(store.Snapshot)) (store.Subscription, error) {
	return r.store.Subscribe(ctx, store.CollectionSignals, store.Query{}.Where(models.FieldRecipientID, identityID), fn)
}

func sentQuery(identityID string) store.Query {
	return store.Query{}.Where(models.FieldSenderID, identityID).Order(models.FieldTimestamp, true)
}

func receivedQuery(identityID string) store.Query {
	return store.Query{}.Where(models.FieldRecipientID, identityID).Order(models.FieldTimestamp, true)
}

func (r *StoreSignalRepository) list(ctx context.Context, q store.Query) ([]models.Signal, error) {
	docs, err := r.store.Query(ctx, store.CollectionSignals, q)
	if err != nil {
		return nil, err
	}
	signals := make([]models.Signal, 0, len(docs))
	for _, doc := range docs {
		signals = append(signals, models.SignalFromDocument(doc))
	}
	return signals, nil
}
