package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/pkg/config"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/metrics"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/outbox/registry"
)

const (
	ackTimeout     = 15 * time.Second
	failureCeiling = 10 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error, retryAt time.Time) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type RelayParams struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Broker      func(context.Context) error
	Events      eventStore
	DeadLetters deadLetters
	Registry    resolver
	Publishers  publisherFactory
	Metrics     *metrics.OutboxMetrics
}

// Relay drains committed outbox rows to Pub/Sub. Each drain claims a batch
// under SKIP LOCKED, publishes the whole batch before waiting on any ack, then
// records every row's outcome in the claiming transaction.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	brokerPing  func(context.Context) error
	events      eventStore
	dlq         deadLetters
	registry    resolver
	publishers  publisherFactory
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Publishers == nil:
		return nil, errors.New("publisher factory is required")
	}

	batch := p.Outbox.BatchSize
	if batch <= 0 {
		batch = 50
	}
	attempts := p.Outbox.MaxAttempts
	if attempts <= 0 {
		attempts = 10
	}

	return &Relay{
		logg:        p.Logger,
		db:          p.DB,
		brokerPing:  p.Broker,
		events:      p.Events,
		dlq:         p.DeadLetters,
		registry:    p.Registry,
		publishers:  p.Publishers,
		metrics:     p.Metrics,
		batchSize:   batch,
		maxAttempts: attempts,
		poll:        p.Outbox.PollInterval(),
		now:         time.Now,
	}, nil
}

func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if r.brokerPing != nil {
		if err := r.brokerPing(ctx); err != nil {
			return fmt.Errorf("pubsub ping failed: %w", err)
		}
	}

	pace := newPacer(r.poll, failureCeiling)
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		claimed, err := r.drain(ctx)
		var pause time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox drain failed", err)
			pause = pace.failed()
		case claimed == r.batchSize:
			pace.idle()
			continue
		default:
			pause = pace.idle()
		}

		if err := wait(ctx, jitter(pause)); err != nil {
			return err
		}
	}
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

type delivery struct {
	row      models.OutboxEvent
	topic    string
	envelope outbox.PayloadEnvelope
	pending  publishResult
	err      error
	verdict  verdict
	reason   enums.OutboxDLQErrorReason
}

// drain processes one batch and reports how many rows it claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(rows)
		if claimed == 0 {
			return nil
		}

		deliveries := r.dispatch(ctx, rows)
		for i := range deliveries {
			if err := r.settle(ctx, tx, &deliveries[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// dispatch hands every resolvable row to its topic publisher, then collects
// the acks and classifies each row.
func (r *Relay) dispatch(ctx context.Context, rows []models.OutboxEvent) []delivery {
	ackCtx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()

	out := make([]delivery, len(rows))
	for i, row := range rows {
		d := &out[i]
		d.row = row

		resolved, err := r.registry.Resolve(row)
		if err != nil {
			d.deadLetter(enums.OutboxDLQReasonNonRetryable, err)
			continue
		}
		d.topic = resolved.Descriptor.Topic
		d.envelope = resolved.Envelope

		pub := r.publishers(d.topic)
		if pub == nil {
			d.deadLetter(enums.OutboxDLQReasonNonRetryable, fmt.Errorf("no publisher for topic %s", d.topic))
			continue
		}
		d.pending = pub.Publish(ackCtx, &gcppubsub.Message{
			Data:       row.Payload,
			Attributes: attributes(row, resolved.Envelope),
		})
		if d.pending == nil {
			d.deadLetter(enums.OutboxDLQReasonNonRetryable, fmt.Errorf("publisher for topic %s returned no result", d.topic))
		}
	}

	for i := range out {
		d := &out[i]
		if d.pending == nil {
			continue
		}
		if _, err := d.pending.Get(ackCtx); err != nil {
			r.classifyFailure(d, err)
			continue
		}
		d.verdict = verdictPublished
	}
	return out
}

func (d *delivery) deadLetter(reason enums.OutboxDLQErrorReason, err error) {
	d.verdict = verdictDeadLetter
	d.reason = reason
	d.err = err
}

func (r *Relay) classifyFailure(d *delivery, err error) {
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		d.deadLetter(enums.OutboxDLQReasonNonRetryable, err)
		return
	}
	if d.row.AttemptCount+1 >= r.maxAttempts {
		d.deadLetter(enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
		return
	}
	d.verdict = verdictRetry
	d.err = err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, d *delivery) error {
	logCtx := r.logg.WithFields(ctx, r.fields(d))
	eventType := string(d.row.EventType)

	switch d.verdict {
	case verdictPublished:
		if err := r.events.MarkPublishedTx(tx, d.row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.row.ID, err)
		}
		r.metrics.Observe(eventType, metrics.OutboxPublished)
		r.logg.Info(logCtx, "outbox event published")

	case verdictRetry:
		retryAt := r.now().Add(retryDelay(d.row.AttemptCount))
		if err := r.events.MarkFailedTx(tx, d.row.ID, d.err, retryAt); err != nil {
			return fmt.Errorf("mark failed %s: %w", d.row.ID, err)
		}
		r.metrics.Observe(eventType, metrics.OutboxRetried)
		r.logg.Warn(logCtx, "outbox publish failed, will retry")

	case verdictDeadLetter:
		msg := d.err.Error()
		entry := models.OutboxDLQ{
			EventID:       d.row.ID,
			EventType:     d.row.EventType,
			AggregateType: d.row.AggregateType,
			AggregateID:   d.row.AggregateID,
			Payload:       d.row.Payload,
			ErrorReason:   d.reason,
			ErrorMessage:  &msg,
			AttemptCount:  d.row.AttemptCount,
			FailedAt:      r.now().UTC(),
		}
		if err := r.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", d.row.ID, err)
		}
		if err := r.events.MarkTerminalTx(tx, d.row.ID, d.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", d.row.ID, err)
		}
		r.metrics.Observe(eventType, metrics.OutboxDeadLetter)
		r.logg.Warn(logCtx, "outbox event dead-lettered")
	}
	return nil
}

// attributes carry routing metadata so subscribers can filter by store
// without decoding the payload.
func attributes(row models.OutboxEvent, env outbox.PayloadEnvelope) map[string]string {
	attrs := map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
	}
	if env.Actor != nil {
		attrs["store_id"] = env.Actor.StoreID.String()
		if env.Actor.Source != "" {
			attrs["source"] = env.Actor.Source
		}
	}
	return attrs
}

func (r *Relay) fields(d *delivery) map[string]any {
	f := map[string]any{
		"outbox_id":     d.row.ID.String(),
		"event_type":    d.row.EventType,
		"aggregate_id":  d.row.AggregateID.String(),
		"attempt_count": d.row.AttemptCount,
	}
	if d.topic != "" {
		f["topic"] = d.topic
	}
	if d.envelope.Actor != nil {
		f["store_id"] = d.envelope.Actor.StoreID.String()
	}
	if d.err != nil {
		f["error"] = d.err.Error()
	}
	if d.verdict == verdictDeadLetter {
		f["error_reason"] = d.reason
	}
	return f
}
