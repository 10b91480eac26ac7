package services

import (
	"context"
	"testing"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/anonto42/lovesignal/backend/internal/events"
	"github.com/anonto42/lovesignal/backend/internal/metrics"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	res, err := f.contacts.RequestContact(ctx, alice, "Bob")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, models.ContactKey(alice, bob), res.Contact.ID)
	assert.Equal(t, models.ContactStatusPending, res.Contact.Status)
	assert.Equal(t, alice, res.Contact.RequesterID)
	assert.Equal(t, bob, res.Contact.RequesteeID)
	assert.False(t, res.Contact.CreatedAt.IsZero())

	recorded := f.events.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, events.ContactRequested, recorded[0].Type)
	assert.Equal(t, "alice", recorded[0].ActorUsername)
	assert.Equal(t, bob, recorded[0].RecipientID)
}

func TestRequestContactIsIdempotentPerPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	first, err := f.contacts.RequestContact(ctx, alice, "bob")
	require.NoError(t, err)

	again, err := f.contacts.RequestContact(ctx, alice, "bob")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.Contact.ID, again.Contact.ID)

	reverse, err := f.contacts.RequestContact(ctx, bob, "alice")
	require.NoError(t, err)
	assert.False(t, reverse.Created)
	assert.Equal(t, alice, reverse.Contact.RequesterID, "the first request keeps its direction")
	assert.Equal(t, models.ContactStatusPending, reverse.Contact.Status)

	assert.Equal(t, []string{events.ContactRequested}, f.events.Types())
}

func TestRequestContactErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")

	_, err := f.contacts.RequestContact(ctx, alice, "alice")
	assert.ErrorIs(t, err, apperrors.ErrSelfReference)

	_, err = f.contacts.RequestContact(ctx, alice, "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.contacts.RequestContact(ctx, "", "alice")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	assert.Empty(t, f.events.Events())
}

func TestAcceptRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	res, err := f.contacts.RequestContact(ctx, alice, "bob")
	require.NoError(t, err)

	_, err = f.contacts.AcceptRequest(ctx, res.Contact.ID, alice)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied, "the requester cannot accept")

	accepted, err := f.contacts.AcceptRequest(ctx, res.Contact.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, models.ContactStatusAccepted, accepted.Status)

	for _, pair := range [][2]string{{alice, bob}, {bob, alice}} {
		ok, err := f.contacts.AreContacts(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err = f.contacts.AcceptRequest(ctx, res.Contact.ID, bob)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied, "already accepted")

	_, err = f.contacts.AcceptRequest(ctx, "missing_pair", bob)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	recorded := f.events.Events()
	require.Len(t, recorded, 2)
	assert.Equal(t, events.ContactAccepted, recorded[1].Type)
	assert.Equal(t, bob, recorded[1].ActorID)
	assert.Equal(t, alice, recorded[1].RecipientID)
}

func TestDeclineThenRequestAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	res, err := f.contacts.RequestContact(ctx, alice, "bob")
	require.NoError(t, err)

	assert.ErrorIs(t, f.contacts.DeclineRequest(ctx, res.Contact.ID, alice), apperrors.ErrPermissionDenied)
	require.NoError(t, f.contacts.DeclineRequest(ctx, res.Contact.ID, bob))

	incoming, err := f.contacts.ListIncomingRequests(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, incoming)

	again, err := f.contacts.RequestContact(ctx, bob, "alice")
	require.NoError(t, err)
	assert.True(t, again.Created)
	assert.Equal(t, bob, again.Contact.RequesterID)
}

func TestRemoveContact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	res, err := f.contacts.RequestContact(ctx, alice, "bob")
	require.NoError(t, err)
	assert.ErrorIs(t, f.contacts.RemoveContact(ctx, res.Contact.ID, alice), apperrors.ErrPermissionDenied, "pending requests are declined, not removed")

	_, err = f.contacts.AcceptRequest(ctx, res.Contact.ID, bob)
	require.NoError(t, err)
	assert.ErrorIs(t, f.contacts.RemoveContact(ctx, res.Contact.ID, carol), apperrors.ErrPermissionDenied)

	require.NoError(t, f.contacts.RemoveContact(ctx, res.Contact.ID, bob))
	ok, err := f.contacts.AreContacts(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{events.ContactRequested, events.ContactAccepted, events.ContactRemoved}, f.events.Types())
	assert.Equal(t, alice, f.events.Events()[2].RecipientID)
}

func TestAreContactsEdgeCases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")
	f.user(t, "bob")

	for _, pair := range [][2]string{{alice, alice}, {alice, ""}, {alice, "id-bob"}} {
		ok, err := f.contacts.AreContacts(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.False(t, ok)
	}

	_, err := f.contacts.RequestContact(ctx, alice, "bob")
	require.NoError(t, err)
	ok, err := f.contacts.AreContacts(ctx, alice, "id-bob")
	require.NoError(t, err)
	assert.False(t, ok, "pending is not accepted")
}

func TestContactLists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.user(t, "carol")
	dave := f.user(t, "dave")

	f.connect(t, alice, "bob", bob)
	_, err := f.contacts.RequestContact(ctx, alice, "carol")
	require.NoError(t, err)
	_, err = f.contacts.RequestContact(ctx, dave, "alice")
	require.NoError(t, err)

	accepted, err := f.contacts.ListContacts(ctx, alice)
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, "bob", accepted[0].Counterpart.Username)

	outgoing, err := f.contacts.ListOutgoingRequests(ctx, alice)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, "carol", outgoing[0].Counterpart.Username)

	incoming, err := f.contacts.ListIncomingRequests(ctx, alice)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, "dave", incoming[0].Counterpart.Username)
}

func TestContactWithoutProfileResolvesToPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")

	repo := repositories.NewStoreContactRepository(f.store)
	ghost := models.NewContactRequest(alice, "id-ghost")
	require.NoError(t, repo.CreateContact(ctx, ghost))

	outgoing, err := f.contacts.ListOutgoingRequests(ctx, alice)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, models.UnknownUsername, outgoing[0].Counterpart.Username)
	assert.Equal(t, "id-ghost", outgoing[0].Counterpart.IdentityID)
}

func TestWatchContacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	gauge := metrics.LiveSubscriptions.WithLabelValues("contacts")
	before := testutil.ToFloat64(gauge)

	views := make(chan models.ContactLists, 16)
	sub, err := f.contacts.WatchContacts(ctx, bob, func(l models.ContactLists) { views <- l })
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(gauge))

	initial := next(t, views)
	assert.Empty(t, initial.Accepted)
	assert.Empty(t, initial.Incoming)

	res, err := f.contacts.RequestContact(ctx, alice, "bob")
	require.NoError(t, err)
	view := next(t, views)
	require.Len(t, view.Incoming, 1)
	assert.Equal(t, "alice", view.Incoming[0].Counterpart.Username)

	_, err = f.contacts.AcceptRequest(ctx, res.Contact.ID, bob)
	require.NoError(t, err)
	view = next(t, views)
	assert.Empty(t, view.Incoming)
	require.Len(t, view.Accepted, 1)

	require.NoError(t, f.contacts.RemoveContact(ctx, res.Contact.ID, alice))
	view = next(t, views)
	assert.Empty(t, view.Accepted)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, before, testutil.ToFloat64(gauge))

	_, err = f.contacts.RequestContact(ctx, alice, "bob")
	require.NoError(t, err)
	quiet(t, views)
}

func TestWatchContactsUnsubscribeFromCallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{})
	alice := f.user(t, "alice")
	f.user(t, "bob")

	views := make(chan models.ContactLists, 4)
	subs := make(chan interface{ Unsubscribe() }, 1)
	sub, err := f.contacts.WatchContacts(ctx, alice, func(l models.ContactLists) {
		views <- l
		(<-subs).Unsubscribe()
	})
	require.NoError(t, err)
	subs <- sub

	next(t, views)
	_, err = f.contacts.RequestContact(ctx, alice, "bob")
	require.NoError(t, err)
	quiet(t, views)
}
