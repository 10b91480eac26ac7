package events

import (
	"context"
	"errors"
	"testing"

	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	boom := errors.New("broker down")
	m := Multi{a, failing{boom}, b}

	err := m.Publish(context.Background(), Event{Type: SignalSent})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{SignalSent}, a.Types())
	assert.Equal(t, []string{SignalSent}, b.Types(), "a failing publisher does not stop the others")

	assert.NoError(t, Multi{}.Publish(context.Background(), Event{}))
	assert.NoError(t, Noop{}.Publish(context.Background(), Event{}))
}

func TestNotificationFor(t *testing.T) {
	tests := []struct {
		event   Event
		kind    string
		message string
	}{
		{Event{Type: ContactRequested, ActorUsername: "alice"}, models.NotificationContactRequest, "alice wants to add you as a contact"},
		{Event{Type: ContactAccepted, ActorUsername: "bob"}, models.NotificationContactAccepted, "bob accepted your contact request"},
		{Event{Type: SignalSent, Detail: "gift"}, models.NotificationSignal, "unknown sent you a gift signal"},
	}
	for _, tt := range tests {
		t.Run(tt.event.Type, func(t *testing.T) {
			tt.event.ActorID, tt.event.RecipientID, tt.event.TargetID = "a", "b", "t"
			n := NotificationFor(tt.event)
			require.NotNil(t, n)
			assert.Equal(t, tt.kind, n.Type)
			assert.Equal(t, tt.message, n.Message)
			assert.Equal(t, "b", n.RecipientID)
			assert.Equal(t, "t", n.TargetID)
		})
	}

	assert.Nil(t, NotificationFor(Event{Type: ContactRemoved}))
}
