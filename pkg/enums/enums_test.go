package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNormalizesInput(t *testing.T) {
	kind, err := ParseLedgerEntryKind("  Sale ")
	require.NoError(t, err)
	assert.Equal(t, LedgerEntryKindSale, kind)

	method, err := ParsePaymentMethod("CARD")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodCard, method)

	_, err = ParseOrderStatus("shipped")
	assert.EqualError(t, err, `invalid order status "shipped"`)
}

func TestOrderTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatusPending, OrderStatusCompleted, true},
		{OrderStatusCompleted, OrderStatusRefunded, true},
		{OrderStatusCompleted, OrderStatusCancelled, true},
		{OrderStatusRefunded, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusRefunded, false},
		{OrderStatusPending, OrderStatusRefunded, false},
		{OrderStatusCompleted, OrderStatusCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	assert.True(t, OrderStatusRefunded.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusCompleted.IsTerminal())
}

func TestIsValid(t *testing.T) {
	assert.True(t, LedgerEntryKindTransfer.IsValid())
	assert.False(t, LedgerEntryKind("theft").IsValid())
	assert.True(t, EventLowStockDetected.IsValid())
	assert.False(t, OutboxEventType("inventory_unknown").IsValid())
	assert.True(t, AggregateInventoryAlert.IsValid())
	assert.False(t, PaymentMethod("").IsValid())
}
