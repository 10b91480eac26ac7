package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Event types published by the domain services.
const (
	ContactRequested = "contact.requested"
	ContactAccepted  = "contact.accepted"
	ContactRemoved   = "contact.removed"
	SignalSent       = "signal.sent"
)

// Event is a fact about the domain that other systems may react to.
type Event struct {
	Type          string    `json:"type"`
	ActorID       string    `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	RecipientID   string    `json:"recipient_id"`
	TargetID      string    `json:"target_id"`
	TargetType    string    `json:"target_type"`
	Detail        string    `json:"detail,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher delivers events. Domain operations log publish failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory; tests use it to assert on side effects.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of every recorded event in order.
func (r *Recorder) Types() []string {
	events := r.Events()
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}
