package models

import "time"

// Notification types
const (
	NotificationContactRequest  = "contact_request"
	NotificationContactAccepted = "contact_accepted"
	NotificationSignal          = "signal"
)

// Notification represents a user notification (PostgreSQL)
type Notification struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Type        string    `json:"type" gorm:"size:30;index"`
	ActorID     string    `json:"actor_id" gorm:"size:64;index"`
	RecipientID string    `json:"recipient_id" gorm:"size:64;index"`
	TargetID    string    `json:"target_id"`                  // signal ID or contact pair key
	TargetType  string    `json:"target_type" gorm:"size:20"` // signal, contact
	Message     string    `json:"message"`
	IsRead      bool      `json:"is_read" gorm:"default:false;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}
