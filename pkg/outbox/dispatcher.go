package outbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/pubsub"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
)

var errUndecodable = errors.New("undecodable payload")

// Sink is where claimed events go; *pubsub.Client in production.
type Sink interface {
	Publish(ctx context.Context, topic string, msg pubsub.Message) pubsub.Result
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type claimStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type DispatcherParams struct {
	DB      txRunner
	Store   claimStore
	Sink    Sink
	Logger  *logger.Logger
	Metrics *metrics.OrderMetrics
	Outbox  config.OutboxConfig
	PubSub  config.PubSubConfig
}

// Dispatcher drains outbox_events to Pub/Sub. Each batch is claimed with
// SKIP LOCKED so several dispatchers can run side by side; events of one
// aggregate share an ordering key and are delivered in insert order.
type Dispatcher struct {
	db          txRunner
	store       claimStore
	sink        Sink
	logg        *logger.Logger
	metrics     *metrics.OrderMetrics
	topic       string
	deadLetter  string
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Sink == nil:
		return nil, errors.New("publish sink is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.PubSub.OrdersTopic == "":
		return nil, errors.New("orders topic is required")
	}
	d := &Dispatcher{
		db:          p.DB,
		store:       p.Store,
		sink:        p.Sink,
		logg:        p.Logger,
		metrics:     p.Metrics,
		topic:       p.PubSub.OrdersTopic,
		deadLetter:  p.PubSub.DLQTopic,
		batchSize:   p.Outbox.BatchSize,
		maxAttempts: p.Outbox.MaxAttempts,
		poll:        time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if d.batchSize <= 0 {
		d.batchSize = defaultBatchSize
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = defaultMaxAttempts
	}
	if d.poll <= 0 {
		d.poll = defaultPoll
	}
	return d, nil
}

// Run dispatches until ctx ends. A full batch is followed immediately by
// the next one; an empty or partial batch waits one poll interval; a failed
// batch backs off exponentially.
func (d *Dispatcher) Run(ctx context.Context) error {
	failures := 0
	for {
		n, err := d.DispatchOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := d.poll
		switch {
		case err != nil:
			failures++
			wait = backoff(d.poll, failures)
			d.logg.Error(d.logg.WithFields(ctx, map[string]any{"failures": failures, "retry_in_ms": wait.Milliseconds()}), "outbox.batch_failed", err)
		case n == d.batchSize:
			failures = 0
			continue
		default:
			failures = 0
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

type inflight struct {
	row    models.OutboxEvent
	env    PayloadEnvelope
	result pubsub.Result
	err    error
}

// DispatchOnce claims one batch, publishes it and records every outcome in
// the claiming transaction. It returns how many rows were claimed.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	claimed := 0
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := d.store.FetchUnpublishedForPublish(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(rows)

		// queue everything first so the publisher can batch the sends
		batch := make([]inflight, len(rows))
		for i, row := range rows {
			env, err := DecodeEnvelope(row.Payload)
			if err != nil {
				batch[i] = inflight{row: row, err: fmt.Errorf("%w: %v", errUndecodable, err)}
				continue
			}
			msg := d.message(row, env, nil)
			msg.OrderingKey = row.AggregateID.String()
			batch[i] = inflight{row: row, env: env, result: d.sink.Publish(ctx, d.topic, msg)}
		}
		for _, item := range batch {
			if item.err == nil {
				item.err = await(ctx, item.result)
			}
			if err := d.settle(ctx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (d *Dispatcher) settle(ctx context.Context, tx *gorm.DB, item inflight) error {
	ctx = d.logg.WithFields(ctx, eventFields(item.row, item.env))
	switch {
	case item.err == nil:
		if err := d.store.MarkPublishedTx(tx, item.row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", item.row.ID, err)
		}
		d.metrics.Outbox("published")
		d.logg.Debug(ctx, "outbox.published")
		return nil
	case errors.Is(item.err, errUndecodable), errors.Is(item.err, pubsub.ErrUnknownTopic):
		return d.deadLetterRow(ctx, tx, item, "non_retryable")
	case item.row.AttemptCount+1 >= d.maxAttempts:
		return d.deadLetterRow(ctx, tx, item, "max_attempts")
	}
	if err := d.store.MarkFailedTx(tx, item.row.ID, item.err); err != nil {
		return fmt.Errorf("mark failed %s: %w", item.row.ID, err)
	}
	d.metrics.Outbox("failed")
	d.logg.Warn(d.logg.WithFields(ctx, map[string]any{
		"error":         item.err.Error(),
		"attempt_count": item.row.AttemptCount + 1,
	}), "outbox.publish_failed")
	return nil
}

// deadLetterRow stops retrying the row and copies it to the dead-letter
// topic. A failed dead-letter send is logged; the row is retired regardless.
func (d *Dispatcher) deadLetterRow(ctx context.Context, tx *gorm.DB, item inflight, reason string) error {
	ctx = d.logg.WithFields(ctx, map[string]any{"terminal_reason": reason, "error": item.err.Error()})
	d.logg.Warn(ctx, "outbox.dead_lettered")
	d.metrics.Outbox("terminal")
	if d.deadLetter != "" {
		msg := d.message(item.row, item.env, map[string]string{"terminal_reason": reason, "error": item.err.Error()})
		if err := await(ctx, d.sink.Publish(ctx, d.deadLetter, msg)); err != nil {
			d.logg.Error(ctx, "outbox.dead_letter_publish_failed", err)
		}
	}
	if err := d.store.MarkTerminalTx(tx, item.row.ID, item.err); err != nil {
		return fmt.Errorf("mark terminal %s: %w", item.row.ID, err)
	}
	return nil
}

func (d *Dispatcher) message(row models.OutboxEvent, env PayloadEnvelope, extra map[string]string) pubsub.Message {
	attrs := map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return pubsub.Message{Data: row.Payload, Attributes: attrs}
}

func eventFields(row models.OutboxEvent, env PayloadEnvelope) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}
	if env.EventID != "" {
		fields["event_id"] = env.EventID
	}
	return fields
}

func await(ctx context.Context, res pubsub.Result) error {
	if res == nil {
		return errors.New("publish returned no result")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err := res.Get(ctx)
	return err
}

// backoff doubles base per consecutive failure, capped, with up to 25% jitter.
func backoff(base time.Duration, failures int) time.Duration {
	wait := base
	for i := 0; i < failures && wait < maxIdleBackoff; i++ {
		wait *= 2
	}
	wait = min(wait, maxIdleBackoff)
	return wait + rand.N(wait/4+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
