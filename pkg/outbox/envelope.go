package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Role   string     `json:"role"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events and
// published verbatim as the message body.
type PayloadEnvelope struct {
	Version       int             `json:"version"`
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Actor         *ActorRef       `json:"actor,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	err := json.Unmarshal(raw, &envelope)
	return envelope, err
}
