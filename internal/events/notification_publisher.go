package events

import (
	"context"
	"fmt"

	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
)

// NotificationPublisher turns events into notification rows for the recipient.
type NotificationPublisher struct {
	notifications repositories.NotificationRepository
}

func NewNotificationPublisher(repo repositories.NotificationRepository) *NotificationPublisher {
	return &NotificationPublisher{notifications: repo}
}

func (p *NotificationPublisher) Publish(ctx context.Context, event Event) error {
	notif := NotificationFor(event)
	if notif == nil {
		return nil
	}
	if err := p.notifications.CreateNotification(ctx, notif); err != nil {
		return fmt.Errorf("record %s notification: %w", event.Type, err)
	}
	return nil
}

// NotificationFor maps an event to the notification shown to its recipient, or nil when
// the event is not user facing.
func NotificationFor(event Event) *models.Notification {
	actor := event.ActorUsername
	if actor == "" {
		actor = models.UnknownUsername
	}
	notif := &models.Notification{
		ActorID:     event.ActorID,
		RecipientID: event.RecipientID,
		TargetID:    event.TargetID,
		TargetType:  event.TargetType,
	}
	switch event.Type {
	case ContactRequested:
		notif.Type = models.NotificationContactRequest
		notif.Message = actor + " wants to add you as a contact"
	case ContactAccepted:
		notif.Type = models.NotificationContactAccepted
		notif.Message = actor + " accepted your contact request"
	case SignalSent:
		notif.Type = models.NotificationSignal
		notif.Message = actor + " sent you a " + event.Detail + " signal"
	default:
		return nil
	}
	return notif
}
