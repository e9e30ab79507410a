package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

const envelopeVersion = 1

// DomainEvent is a state change a business service wants announced.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

// Emitter queues events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type inserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

// Writer is the Emitter backed by the outbox_events table.
type Writer struct {
	rows inserter
	logg *logger.Logger
}

func NewWriter(rows *Repository, logg *logger.Logger) *Writer {
	return &Writer{rows: rows, logg: logg}
}

// Emit stores the event through tx, so it commits or rolls back together
// with the state change it describes.
func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("outbox emit needs a transaction")
	}
	row, env, err := seal(event, time.Now)
	if err != nil {
		return err
	}
	if err := w.rows.Insert(tx, row); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	if w.logg != nil {
		w.logg.Debug(w.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID,
			"event_type":   env.EventType,
			"aggregate_id": env.AggregateID,
		}), "outbox.queued")
	}
	return nil
}

// seal validates event and wraps it in the versioned envelope stored as the row payload.
func seal(event DomainEvent, now func() time.Time) (models.OutboxEvent, PayloadEnvelope, error) {
	if !event.EventType.IsValid() {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("unknown outbox event type %q", event.EventType)
	}
	if !event.AggregateType.IsValid() {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("unknown outbox aggregate type %q", event.AggregateType)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = now()
	}
	env := PayloadEnvelope{
		Version:       envelopeVersion,
		EventID:       uuid.NewString(),
		EventType:     string(event.EventType),
		AggregateType: string(event.AggregateType),
		AggregateID:   event.AggregateID.String(),
		OccurredAt:    occurred.UTC(),
		Actor:         event.Actor,
		Data:          data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, err
	}
	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       types.RawJSON(payload),
	}, env, nil
}
