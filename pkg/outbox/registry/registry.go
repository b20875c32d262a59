// Package registry routes outbox rows to Pub/Sub topics and decodes their
// payloads into the typed events in package payloads.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/posledger-backend/pkg/config"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/outbox/payloads"
)

// EventDescriptor is where one event type is published and which aggregate
// it must belong to.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (any, error)
}

// ResolvedEvent is an outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// EventRegistry is the fixed routing table for every event the service emits.
type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

// route binds eventType to a topic and decodes its data as T.
func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// NewEventRegistry sends inventory events and order events to their own
// topics.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var missing []error
	if cfg.InventoryTopic == "" {
		missing = append(missing, errors.New("inventory topic is required"))
	}
	if cfg.OrdersTopic == "" {
		missing = append(missing, errors.New("orders topic is required"))
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	inv, ord := cfg.InventoryTopic, cfg.OrdersTopic
	reg := &EventRegistry{routes: map[enums.OutboxEventType]EventDescriptor{}}
	for _, d := range []EventDescriptor{
		route[payloads.StockChangedEvent](enums.EventStockChanged, enums.AggregateLedgerEntry, inv),
		route[payloads.InventoryRebuiltEvent](enums.EventInventoryRebuilt, enums.AggregateInventory, inv),
		route[payloads.LowStockDetectedEvent](enums.EventLowStockDetected, enums.AggregateInventoryAlert, inv),
		route[payloads.OrderCompletedEvent](enums.EventOrderCompleted, enums.AggregateOrder, ord),
		route[payloads.OrderReversedEvent](enums.EventOrderRefunded, enums.AggregateOrder, ord),
		route[payloads.OrderReversedEvent](enums.EventOrderCancelled, enums.AggregateOrder, ord),
	} {
		reg.routes[d.EventType] = d
	}
	return reg, nil
}

// Topics lists the distinct topics in sorted order.
func (r *EventRegistry) Topics() []string {
	set := map[string]struct{}{}
	for _, d := range r.routes {
		set[d.Topic] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is a NonRetryableError: the row will not change on a retry.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	d, ok := r.routes[row.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", row.EventType)
	case d.AggregateType != row.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", d.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	env, err := outbox.Open(row.Payload)
	if err != nil {
		return nil, permanent("%s: %w", row.EventType, err)
	}
	payload, err := d.decode(env.Data)
	if err != nil {
		return nil, permanent("decode %s payload: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: d, Envelope: env, Payload: payload}, nil
}
