package access

import (
	"context"
	"time"
)

type EventType string

const (
	EventGrant  EventType = "grant"
	EventRevoke EventType = "revoke"
)

// Event is the ephemeral message pushed to connected clients when a
// grant changes. It is never persisted; a client that missed one
// recovers by re-querying the store.
type Event struct {
	Type      EventType  `json:"type"`
	Subject   string     `json:"subject"`
	Feature   string     `json:"feature"`
	FeatureID string     `json:"feature_id"`
	Expiry    *time.Time `json:"expiry,omitempty"`
	Message   string     `json:"message,omitempty"`
}

func GrantEvent(g Grant) Event {
	expiry := g.Expiry
	return Event{
		Type:      EventGrant,
		Subject:   g.Subject,
		Feature:   g.Feature,
		FeatureID: g.FeatureID,
		Expiry:    &expiry,
		Message:   g.Message.String,
	}
}

func RevokeEvent(key Key) Event {
	return Event{
		Type:      EventRevoke,
		Subject:   key.Subject,
		Feature:   key.Feature,
		FeatureID: key.FeatureID,
	}
}

type (
	// Subscription is one client session's view of a subject's event
	// stream. Events arrive in publish order for that subject.
	Subscription interface {
		Events() <-chan Event
		Close() error
	}

	// Broker fans events out to all subscriptions registered for the
	// event's subject. Delivery is best-effort; a publish must never
	// fail the mutation that triggered it.
	Broker interface {
		Publish(ctx context.Context, ev Event) error
		Subscribe(ctx context.Context, subject string) (Subscription, error)
		Close() error
	}
)
