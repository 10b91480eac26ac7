package models

import (
	"fmt"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/store"
)

// Document field names shared by the store-backed models.
const (
	FieldIdentityID   = "identityId"
	FieldUsername     = "username"
	FieldEmail        = "email"
	FieldCreatedAt    = "createdAt"
	FieldUpdatedAt    = "updatedAt"
	FieldParticipants = "participants"
	FieldRequesterID  = "requesterId"
	FieldRequesteeID  = "requesteeId"
	FieldStatus       = "status"
	FieldSenderID     = "senderId"
	FieldRecipientID  = "recipientId"
	FieldMessage      = "message"
	FieldType         = "type"
	FieldTimestamp    = "timestamp"
)

func fieldString(f store.Fields, key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func fieldTime(f store.Fields, key string) time.Time {
	if t, ok := f[key].(time.Time); ok {
		return t
	}
	return time.Time{}
}

func fieldStrings(f store.Fields, key string) []string {
	switch v := f[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}
