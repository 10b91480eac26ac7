package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/anonto42/lovesignal/backend/internal/events"
	"github.com/anonto42/lovesignal/backend/internal/metrics"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/anonto42/lovesignal/backend/internal/store"
	"go.uber.org/zap"
)

// ContactResult is the outcome of RequestContact. Created is false when the pair already
// had a record, in which case Contact is that record.
type ContactResult struct {
	Contact models.Contact `json:"contact"`
	Created bool           `json:"created"`
}

// ContactManager drives the contact state machine of every identity pair.
type ContactManager struct {
	contacts  repositories.ContactRepository
	profiles  repositories.ProfileRepository
	publisher events.Publisher
	logger    *zap.Logger
}

func NewContactManager(contacts repositories.ContactRepository, profiles repositories.ProfileRepository, publisher events.Publisher, logger *zap.Logger) *ContactManager {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactManager{
		contacts:  contacts,
		profiles:  profiles,
		publisher: publisher,
		logger:    logger.Named("contacts"),
	}
}

// RequestContact creates a pending request from requesterID to the owner of
// requesteeUsername. Requesting a pair that already has a record returns that record.
func (m *ContactManager) RequestContact(ctx context.Context, requesterID, requesteeUsername string) (res ContactResult, err error) {
	defer func() { metrics.ContactTransitionsTotal.WithLabelValues("request", metrics.Result(err)).Inc() }()

	if requesterID == "" {
		return ContactResult{}, apperrors.Wrap(apperrors.ErrValidation, "requester is required")
	}
	target, err := m.profiles.GetProfileByUsername(ctx, requesteeUsername)
	if err != nil {
		return ContactResult{}, err
	}
	if target.IdentityID == requesterID {
		return ContactResult{}, apperrors.Wrap(apperrors.ErrSelfReference, "you cannot add yourself")
	}

	contact := models.NewContactRequest(requesterID, target.IdentityID)
	if err := m.contacts.CreateContact(ctx, contact); err != nil {
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			return ContactResult{}, err
		}
		existing, getErr := m.contacts.GetContact(ctx, contact.ID)
		if getErr != nil {
			return ContactResult{}, getErr
		}
		m.logger.Debug("contact already exists",
			zap.String("contact_id", existing.ID),
			zap.String("status", string(existing.Status)))
		return ContactResult{Contact: *existing}, nil
	}

	created, err := m.contacts.GetContact(ctx, contact.ID)
	if err != nil {
		// The write succeeded; report what was written.
		created = &contact
	}
	m.logger.Info("contact requested",
		zap.String("contact_id", contact.ID),
		zap.String("requester", requesterID),
		zap.String("requestee", target.IdentityID))
	m.publish(ctx, events.Event{
		Type:        events.ContactRequested,
		ActorID:     requesterID,
		RecipientID: target.IdentityID,
		TargetID:    contact.ID,
		TargetType:  "contact",
	})
	return ContactResult{Contact: *created, Created: true}, nil
}

// AcceptRequest moves a pending request to accepted. Only the requestee may accept.
func (m *ContactManager) AcceptRequest(ctx context.Context, contactID, callerID string) (_ *models.Contact, err error) {
	defer func() { metrics.ContactTransitionsTotal.WithLabelValues("accept", metrics.Result(err)).Inc() }()

	contact, err := m.pendingFor(ctx, contactID, callerID)
	if err != nil {
		return nil, err
	}
	if err := m.contacts.UpdateContactStatus(ctx, contactID, models.ContactStatusAccepted); err != nil {
		return nil, err
	}
	updated, err := m.contacts.GetContact(ctx, contactID)
	if err != nil {
		contact.Status = models.ContactStatusAccepted
		updated = contact
	}

	m.logger.Info("contact accepted", zap.String("contact_id", contactID), zap.String("by", callerID))
	m.publish(ctx, events.Event{
		Type:        events.ContactAccepted,
		ActorID:     callerID,
		RecipientID: contact.RequesterID,
		TargetID:    contactID,
		TargetType:  "contact",
	})
	return updated, nil
}

// DeclineRequest removes a pending request. Only the requestee may decline; afterwards
// either side may request again.
func (m *ContactManager) DeclineRequest(ctx context.Context, contactID, callerID string) (err error) {
	defer func() { metrics.ContactTransitionsTotal.WithLabelValues("decline", metrics.Result(err)).Inc() }()

	if _, err := m.pendingFor(ctx, contactID, callerID); err != nil {
		return err
	}
	if err := m.contacts.DeleteContact(ctx, contactID); err != nil {
		return err
	}
	m.logger.Info("contact declined", zap.String("contact_id", contactID), zap.String("by", callerID))
	return nil
}

// RemoveContact deletes an accepted contact on behalf of either participant.
func (m *ContactManager) RemoveContact(ctx context.Context, contactID, callerID string) (err error) {
	defer func() { metrics.ContactTransitionsTotal.WithLabelValues("remove", metrics.Result(err)).Inc() }()

	contact, err := m.contacts.GetContact(ctx, contactID)
	if err != nil {
		return err
	}
	if !contact.HasParticipant(callerID) || contact.Status != models.ContactStatusAccepted {
		return apperrors.Wrap(apperrors.ErrPermissionDenied, "only a participant can remove an accepted contact")
	}
	if err := m.contacts.DeleteContact(ctx, contactID); err != nil {
		return err
	}

	m.logger.Info("contact removed", zap.String("contact_id", contactID), zap.String("by", callerID))
	m.publish(ctx, events.Event{
		Type:        events.ContactRemoved,
		ActorID:     callerID,
		RecipientID: contact.Counterpart(callerID),
		TargetID:    contactID,
		TargetType:  "contact",
	})
	return nil
}

// ListContacts returns the accepted contacts of identityID.
func (m *ContactManager) ListContacts(ctx context.Context, identityID string) ([]models.ContactWithProfile, error) {
	contacts, err := m.contacts.GetUserContacts(ctx, identityID, models.ContactStatusAccepted)
	if err != nil {
		return nil, err
	}
	return m.withProfiles(ctx, profileCacheFrom(ctx, m.profiles), identityID, contacts)
}

// ListIncomingRequests returns pending requests addressed to identityID.
func (m *ContactManager) ListIncomingRequests(ctx context.Context, identityID string) ([]models.ContactWithProfile, error) {
	contacts, err := m.contacts.GetIncomingRequests(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return m.withProfiles(ctx, profileCacheFrom(ctx, m.profiles), identityID, contacts)
}

// ListOutgoingRequests returns pending requests identityID has sent.
func (m *ContactManager) ListOutgoingRequests(ctx context.Context, identityID string) ([]models.ContactWithProfile, error) {
	contacts, err := m.contacts.GetOutgoingRequests(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return m.withProfiles(ctx, profileCacheFrom(ctx, m.profiles), identityID, contacts)
}

// AreContacts reports whether a and b have an accepted contact.
func (m *ContactManager) AreContacts(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" || a == b {
		return false, nil
	}
	contact, err := m.contacts.GetContact(ctx, models.ContactKey(a, b))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return contact.Status == models.ContactStatusAccepted, nil
}

// WatchContacts emits the full contact lists of identityID once the initial snapshot
// arrives and again after every change. fn is never called concurrently; it may call
// Unsubscribe itself.
func (m *ContactManager) WatchContacts(ctx context.Context, identityID string, fn func(models.ContactLists)) (store.Subscription, error) {
	w := &contactWatch{
		manager:    m,
		cache:      profileCacheFrom(ctx, m.profiles),
		identityID: identityID,
		records:    make(map[string]models.Contact),
		fn:         fn,
	}
	sub, err := m.contacts.SubscribeUserContacts(ctx, identityID, func(snap store.Snapshot) {
		w.apply(ctx, snap)
	})
	if err != nil {
		return nil, err
	}

	gauge := metrics.LiveSubscriptions.WithLabelValues("contacts")
	gauge.Inc()
	var once sync.Once
	return store.SubscriptionFunc(func() {
		once.Do(func() {
			sub.Unsubscribe()
			w.close()
			gauge.Dec()
		})
	}), nil
}

type contactWatch struct {
	manager    *ContactManager
	cache      *ProfileCache
	identityID string
	fn         func(models.ContactLists)

	closed atomic.Bool

	mu      sync.Mutex
	records map[string]models.Contact
}

func (w *contactWatch) apply(ctx context.Context, snap store.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Load() {
		return
	}
	for _, ch := range snap.Changes {
		if ch.Kind == store.Removed {
			delete(w.records, ch.Document.ID)
			continue
		}
		w.records[ch.Document.ID] = models.ContactFromDocument(ch.Document)
	}

	all := make([]models.Contact, 0, len(w.records))
	for _, c := range w.records {
		all = append(all, c)
	}
	resolved, err := w.manager.withProfiles(ctx, w.cache, w.identityID, all)
	if err != nil {
		w.manager.logger.Warn("resolve contact profiles", zap.Error(err))
		return
	}

	var lists models.ContactLists
	for _, c := range resolved {
		switch {
		case c.Status == models.ContactStatusAccepted:
			lists.Accepted = append(lists.Accepted, c)
		case c.RequesteeID == w.identityID:
			lists.Incoming = append(lists.Incoming, c)
		default:
			lists.Outgoing = append(lists.Outgoing, c)
		}
	}
	if w.closed.Load() {
		return
	}
	metrics.StreamEmissions.WithLabelValues("contacts").Inc()
	w.fn(lists)
}

func (w *contactWatch) close() { w.closed.Store(true) }

// pendingFor loads a contact and checks that callerID may answer it.
func (m *ContactManager) pendingFor(ctx context.Context, contactID, callerID string) (*models.Contact, error) {
	contact, err := m.contacts.GetContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if contact.RequesteeID != callerID || contact.Status != models.ContactStatusPending {
		return nil, apperrors.Wrap(apperrors.ErrPermissionDenied, "only the recipient can answer a pending request")
	}
	return contact, nil
}

// withProfiles resolves the counterpart of each contact, newest first.
func (m *ContactManager) withProfiles(ctx context.Context, cache *ProfileCache, identityID string, contacts []models.Contact) ([]models.ContactWithProfile, error) {
	out := make([]models.ContactWithProfile, 0, len(contacts))
	for _, c := range contacts {
		profile, err := cache.Resolve(ctx, c.Counterpart(identityID))
		if err != nil {
			return nil, err
		}
		out = append(out, models.ContactWithProfile{Contact: c, Counterpart: profile})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// publish delivers an event without failing the operation that produced it.
func (m *ContactManager) publish(ctx context.Context, event events.Event) {
	if event.ActorUsername == "" {
		event.ActorUsername = profileCacheFrom(ctx, m.profiles).Username(ctx, event.ActorID)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Warn("publish event failed", zap.String("type", event.Type), zap.Error(err))
	}
}
