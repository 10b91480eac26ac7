package models

import (
	"sort"
	"strings"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/store"
)

type ContactStatus string

const (
	ContactStatusPending  ContactStatus = "pending"
	ContactStatusAccepted ContactStatus = "accepted"
)

// Contact is the relationship record of one unordered pair of identities. Its id is the
// pair key, so the store holds at most one record per pair.
type Contact struct {
	ID           string        `json:"id"`
	Participants []string      `json:"participants"`
	RequesterID  string        `json:"requester_id"`
	RequesteeID  string        `json:"requestee_id"`
	Status       ContactStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ContactKey derives the storage key of a pair from the sorted identity ids.
func ContactKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// NewContactRequest builds a pending contact from requester to requestee.
func NewContactRequest(requesterID, requesteeID string) Contact {
	participants := []string{requesterID, requesteeID}
	sort.Strings(participants)
	return Contact{
		ID:           ContactKey(requesterID, requesteeID),
		Participants: participants,
		RequesterID:  requesterID,
		RequesteeID:  requesteeID,
		Status:       ContactStatusPending,
	}
}

// HasParticipant reports whether identityID is one side of the contact.
func (c Contact) HasParticipant(identityID string) bool {
	return c.RequesterID == identityID || c.RequesteeID == identityID
}

// Counterpart returns the other side of the contact as seen from identityID.
func (c Contact) Counterpart(identityID string) string {
	if c.RequesterID == identityID {
		return c.RequesteeID
	}
	return c.RequesterID
}

func (c Contact) Fields() store.Fields {
	return store.Fields{
		FieldParticipants: append([]string(nil), c.Participants...),
		FieldRequesterID:  c.RequesterID,
		FieldRequesteeID:  c.RequesteeID,
		FieldStatus:       string(c.Status),
		FieldCreatedAt:    store.ServerTimestamp,
		FieldUpdatedAt:    store.ServerTimestamp,
	}
}

func ContactFromDocument(doc store.Document) Contact {
	return Contact{
		ID:           doc.ID,
		Participants: fieldStrings(doc.Fields, FieldParticipants),
		RequesterID:  fieldString(doc.Fields, FieldRequesterID),
		RequesteeID:  fieldString(doc.Fields, FieldRequesteeID),
		Status:       ContactStatus(fieldString(doc.Fields, FieldStatus)),
		CreatedAt:    fieldTime(doc.Fields, FieldCreatedAt),
		UpdatedAt:    fieldTime(doc.Fields, FieldUpdatedAt),
	}
}

// ContactWithProfile is a contact resolved to the profile of the other participant.
type ContactWithProfile struct {
	Contact
	Counterpart Profile `json:"counterpart"`
}

// ContactLists is the full contact view of one identity.
type ContactLists struct {
	Accepted []ContactWithProfile `json:"accepted"`
	Incoming []ContactWithProfile `json:"incoming"`
	Outgoing []ContactWithProfile `json:"outgoing"`
}

// CreateContactRequest defines the request body for sending a contact request
type CreateContactRequest struct {
	Username string `json:"username" validate:"required,min=3"`
}
