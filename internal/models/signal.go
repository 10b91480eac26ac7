package models

import (
	"time"

	"github.com/anonto42/lovesignal/backend/internal/store"
)

// Signal is one directed act of appreciation. The timestamp is written by the store.
type Signal struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Message     string    `json:"message"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

func (s Signal) Fields() store.Fields {
	return store.Fields{
		FieldSenderID:    s.SenderID,
		FieldRecipientID: s.RecipientID,
		FieldMessage:     s.Message,
		FieldType:        s.Type,
		FieldTimestamp:   store.ServerTimestamp,
	}
}

func SignalFromDocument(doc store.Document) Signal {
	return Signal{
		ID:          doc.ID,
		SenderID:    fieldString(doc.Fields, FieldSenderID),
		RecipientID: fieldString(doc.Fields, FieldRecipientID),
		Message:     fieldString(doc.Fields, FieldMessage),
		Type:        fieldString(doc.Fields, FieldType),
		Timestamp:   fieldTime(doc.Fields, FieldTimestamp),
		UpdatedAt:   fieldTime(doc.Fields, FieldUpdatedAt),
	}
}

// SignalPatch lists the sender-editable fields; nil means unchanged.
type SignalPatch struct {
	Message     *string `json:"message,omitempty"`
	Type        *string `json:"type,omitempty"`
	RecipientID *string `json:"recipient_id,omitempty"`
}

func (p SignalPatch) Empty() bool {
	return p.Message == nil && p.Type == nil && p.RecipientID == nil
}

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// LogEntry is a signal as seen from one identity.
type LogEntry struct {
	Signal
	Direction           Direction `json:"direction"`
	CounterpartUsername string    `json:"counterpart_username"`
}

// LogView is one emission of a live signal log.
type LogView struct {
	Entries       []LogEntry `json:"entries"`
	SentCount     int        `json:"sent_count"`
	ReceivedCount int        `json:"received_count"`
	LoveIndex     int        `json:"love_index"`
}

// Summary is the dashboard read of one identity.
type Summary struct {
	SentCount     int    `json:"sent_count"`
	ReceivedCount int    `json:"received_count"`
	LoveIndex     int    `json:"love_index"`
	Policy        string `json:"policy"`
}

// CategoryCount is one row of the report breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Sent     int    `json:"sent"`
	Received int    `json:"received"`
}

// Recipient target kinds accepted by SendSignalRequest.
const (
	TargetUsername = "username"
	TargetContact  = "contact"
	TargetIdentity = "identity"
)

type SendSignalRequest struct {
	Target    string `json:"target" validate:"omitempty,oneof=username contact identity"`
	Recipient string `json:"recipient" validate:"required"`
	Message   string `json:"message" validate:"required,max=1000"`
	Type      string `json:"type" validate:"required"`
}

type EditSignalRequest struct {
	Message     *string `json:"message,omitempty" validate:"omitempty,min=1,max=1000"`
	Type        *string `json:"type,omitempty"`
	RecipientID *string `json:"recipient_id,omitempty"`
}
