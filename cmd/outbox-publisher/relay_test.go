package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/pkg/config"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/metrics"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/posledger-backend/pkg/outbox/registry"
)

func TestDrainSettlesEachRowIndependently(t *testing.T) {
	h := newHarness(t, config.OutboxConfig{BatchSize: 5, MaxAttempts: 5})
	first, second := h.stockRow("one"), h.stockRow("two")
	h.store.rows = []models.OutboxEvent{first, second}
	h.pub.errs = []error{errors.New("transient"), nil}

	claimed, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	assert.Equal(t, []uuid.UUID{first.ID}, h.store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, h.store.published)
	assert.Empty(t, h.dlq.entries)
}

func TestDrainDefersRetriesByAttempt(t *testing.T) {
	h := newHarness(t, config.OutboxConfig{MaxAttempts: 10})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.relay.now = func() time.Time { return now }

	fresh, worn := h.stockRow("fresh"), h.stockRow("worn")
	worn.AttemptCount = 3
	h.store.rows = []models.OutboxEvent{fresh, worn}
	h.pub.errs = []error{errors.New("unavailable"), errors.New("unavailable")}

	_, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, h.store.retryAt, 2)
	assert.Equal(t, now.Add(retryBase), h.store.retryAt[0])
	assert.Equal(t, now.Add(retryBase<<3), h.store.retryAt[1])
}

func TestDrainPublishesWholeBatchBeforeWaiting(t *testing.T) {
	h := newHarness(t, config.OutboxConfig{BatchSize: 3, MaxAttempts: 5})
	h.store.rows = []models.OutboxEvent{h.stockRow("a"), h.stockRow("b"), h.stockRow("c")}

	_, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, h.pub.messages, 3)
	assert.Equal(t, 3, h.pub.publishedBeforeFirstGet)
}

func TestDrainEmptyBatch(t *testing.T) {
	h := newHarness(t, config.OutboxConfig{})

	claimed, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, claimed)
	assert.Empty(t, h.pub.messages)
}

func TestDrainDeadLettersUnresolvableRows(t *testing.T) {
	h := newHarness(t, config.OutboxConfig{})
	row := h.stockRow("broken")
	row.EventType = "inventory.unknown"
	h.store.rows = []models.OutboxEvent{row}

	_, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	entry := h.dlq.entries[0]
	assert.Equal(t, row.ID, entry.EventID)
	assert.JSONEq(t, string(row.Payload), string(entry.Payload))
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "unsupported event type")
	assert.Equal(t, []uuid.UUID{row.ID}, h.store.terminal)
	assert.Empty(t, h.pub.messages)
}

func TestDrainDeadLettersAtMaxAttempts(t *testing.T) {
	h := newHarness(t, config.OutboxConfig{MaxAttempts: 2})
	row := h.stockRow("tired")
	row.AttemptCount = 1
	h.store.rows = []models.OutboxEvent{row}
	h.pub.errs = []error{errors.New("deadline exceeded")}

	_, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, h.dlq.entries[0].ErrorReason)
	assert.Empty(t, h.store.failed)
	assert.Equal(t, float64(1), h.sample(string(enums.EventStockChanged), metrics.OutboxDeadLetter))
}

func TestDrainMissingPublisherIsTerminal(t *testing.T) {
	h := newHarness(t, config.OutboxConfig{})
	h.relay.publishers = func(string) topicPublisher { return nil }
	h.store.rows = []models.OutboxEvent{h.stockRow("orphan")}

	_, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	assert.Contains(t, *h.dlq.entries[0].ErrorMessage, "no publisher for topic")
}

func TestDrainPropagatesSettleErrors(t *testing.T) {
	h := newHarness(t, config.OutboxConfig{})
	h.store.rows = []models.OutboxEvent{h.stockRow("x")}
	h.store.markErr = errors.New("connection reset")

	_, err := h.relay.drain(context.Background())
	require.ErrorContains(t, err, "mark published")
}

func TestAttributesCarryStoreRouting(t *testing.T) {
	storeID := uuid.New()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	env := outbox.PayloadEnvelope{
		EventID: "evt-1",
		Actor:   &outbox.ActorRef{StoreID: storeID, Source: "checkout"},
	}

	attrs := attributes(row, env)
	assert.Equal(t, "evt-1", attrs["event_id"])
	assert.Equal(t, storeID.String(), attrs["store_id"])
	assert.Equal(t, "checkout", attrs["source"])
	assert.Equal(t, string(enums.AggregateOrder), attrs["aggregate_type"])
	assert.Equal(t, "2026-03-01T12:00:00Z", attrs["created_at"])

	bare := attributes(row, outbox.PayloadEnvelope{})
	assert.NotContains(t, bare, "store_id")
}

func TestRunStopsWhenContextCanceled(t *testing.T) {
	h := newHarness(t, config.OutboxConfig{PollIntervalMS: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, h.relay.Run(ctx), context.Canceled)
}

func TestRunFailsWhenBrokerUnreachable(t *testing.T) {
	h := newHarness(t, config.OutboxConfig{})
	h.relay.brokerPing = func(context.Context) error { return errors.New("unavailable") }

	require.ErrorContains(t, h.relay.Run(context.Background()), "pubsub ping failed")
}

func TestNewRelayRequiresDependencies(t *testing.T) {
	_, err := NewRelay(RelayParams{Logger: logger.Discard()})
	require.Error(t, err)
}

type harness struct {
	t     *testing.T
	relay *Relay
	store *memoryEvents
	dlq   *memoryDLQ
	pub   *recordingPublisher
	vec   *prometheus.Registry
}

func newHarness(t *testing.T, cfg config.OutboxConfig) *harness {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{
		InventoryTopic: "inventory",
		OrdersTopic:    "orders",
	})
	require.NoError(t, err)

	h := &harness{
		t:     t,
		store: &memoryEvents{},
		dlq:   &memoryDLQ{},
		pub:   &recordingPublisher{},
		vec:   prometheus.NewRegistry(),
	}
	relay, err := NewRelay(RelayParams{
		Outbox:      cfg,
		Logger:      logger.Discard(),
		DB:          passthroughTx{},
		Events:      h.store,
		DeadLetters: h.dlq,
		Registry:    reg,
		Publishers:  func(string) topicPublisher { return h.pub },
		Metrics:     metrics.NewOutboxMetrics(h.vec),
	})
	require.NoError(t, err)
	h.relay = relay
	return h
}

func (h *harness) stockRow(eventID string) models.OutboxEvent {
	h.t.Helper()
	data, err := json.Marshal(payloads.StockChangedEvent{ProductID: uuid.New()})
	require.NoError(h.t, err)
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       data,
	})
	require.NoError(h.t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventStockChanged,
		AggregateType: enums.AggregateLedgerEntry,
		AggregateID:   uuid.New(),
		Payload:       payload,
	}
}

func (h *harness) sample(eventType, outcome string) float64 {
	h.t.Helper()
	families, err := h.vec.Gather()
	require.NoError(h.t, err)
	for _, mf := range families {
		if mf.GetName() != "posledger_outbox_publish_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["event_type"] == eventType && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

type passthroughTx struct{}

func (passthroughTx) Ping(context.Context) error { return nil }

func (passthroughTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type memoryEvents struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	retryAt   []time.Time
	markErr   error
}

func (m *memoryEvents) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(m.rows) > limit {
		return m.rows[:limit], nil
	}
	return m.rows, nil
}

func (m *memoryEvents) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.published = append(m.published, id)
	return nil
}

func (m *memoryEvents) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error, retryAt time.Time) error {
	m.failed = append(m.failed, id)
	m.retryAt = append(m.retryAt, retryAt)
	return nil
}

func (m *memoryEvents) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	m.terminal = append(m.terminal, id)
	return nil
}

type memoryDLQ struct {
	entries []models.OutboxDLQ
}

func (m *memoryDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}

// recordingPublisher hands out results in order; errs[i] is the ack error for
// the i-th message.
type recordingPublisher struct {
	errs                    []error
	messages                []*gcppubsub.Message
	gets                    int
	publishedBeforeFirstGet int
}

func (p *recordingPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	idx := len(p.messages)
	p.messages = append(p.messages, msg)
	var err error
	if idx < len(p.errs) {
		err = p.errs[idx]
	}
	return recordedResult{p: p, err: err}
}

type recordedResult struct {
	p   *recordingPublisher
	err error
}

func (r recordedResult) Get(context.Context) (string, error) {
	if r.p.gets == 0 {
		r.p.publishedBeforeFirstGet = len(r.p.messages)
	}
	r.p.gets++
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}
