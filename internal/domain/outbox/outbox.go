package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/event"
)

type Entry struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	Stream     string
	EventType  event.Type
	Payload    []byte
	Status     Status
	RetryCount int
	MaxRetries int
	CreatedAt  time.Time
	PublishedAt *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// NewEntry stores an envelope for later publication to the given stream.
func NewEntry(stream string, env event.Envelope) *Entry {
	return &Entry{
		ID:         uuid.New(),
		OrderID:    env.OrderID,
		Stream:     stream,
		EventType:  env.Type,
		Payload:    env.Payload,
		Status:     StatusPending,
		RetryCount: 0,
		MaxRetries: 5,
		CreatedAt:  time.Now(),
	}
}

// Envelope reconstructs the wire envelope for publication.
func (e *Entry) Envelope() event.Envelope {
	return event.Envelope{
		OrderID:    e.OrderID,
		Type:       e.EventType,
		Payload:    e.Payload,
		OccurredAt: e.CreatedAt,
	}
}
