package enums

// OutboxAggregateType maps to the outbox_aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregateInventory      OutboxAggregateType = "store_inventory"
	AggregateLedgerEntry    OutboxAggregateType = "inventory_ledger_entry"
	AggregateInventoryAlert OutboxAggregateType = "inventory_alert"
)

var aggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateInventory,
	AggregateLedgerEntry,
	AggregateInventoryAlert,
}

func (a OutboxAggregateType) IsValid() bool { return member(aggregateTypes, a) }

// OutboxEventType maps to the outbox_event_type enum in Postgres.
type OutboxEventType string

const (
	EventStockChanged     OutboxEventType = "inventory_stock_changed"
	EventInventoryRebuilt OutboxEventType = "inventory_rebuilt"
	EventLowStockDetected OutboxEventType = "inventory_low_stock"
	EventOrderCompleted   OutboxEventType = "order_completed"
	EventOrderRefunded    OutboxEventType = "order_refunded"
	EventOrderCancelled   OutboxEventType = "order_cancelled"
)

var eventTypes = []OutboxEventType{
	EventStockChanged,
	EventInventoryRebuilt,
	EventLowStockDetected,
	EventOrderCompleted,
	EventOrderRefunded,
	EventOrderCancelled,
}

func (e OutboxEventType) IsValid() bool { return member(eventTypes, e) }

// OutboxDLQErrorReason maps to the outbox_dlq_error_reason enum in Postgres.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
