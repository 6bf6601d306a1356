package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderTransitionTable(t *testing.T) {
	allowed := map[OrderStatus]map[OrderStatus]bool{
		StatusPendingPayment: {StatusConfirmed: true, StatusPaymentFailed: true},
		StatusPaymentFailed:  {},
		StatusConfirmed:      {StatusPreparing: true, StatusCancelled: true},
		StatusPreparing:      {StatusReady: true, StatusCancelled: true},
		StatusReady:          {StatusOutForDelivery: true, StatusCompleted: true},
		StatusOutForDelivery: {StatusCompleted: true},
		StatusCompleted:      {},
		StatusCancelled:      {},
	}

	all := []OrderStatus{
		StatusPendingPayment, StatusPaymentFailed, StatusConfirmed, StatusPreparing,
		StatusReady, StatusOutForDelivery, StatusCompleted, StatusCancelled,
	}

	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to)
			want := allowed[from][to]
			assert.Equalf(t, want, got, "transition %s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesAllowNothing(t *testing.T) {
	for _, s := range []OrderStatus{StatusCompleted, StatusCancelled, StatusPaymentFailed} {
		assert.Emptyf(t, AllowedNextStatuses(s), "status %s must be a dead end", s)
	}
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	// payment_failed is a dead end but not terminal: it stays visible in the
	// live-order idempotency window.
	assert.False(t, StatusPaymentFailed.IsTerminal())
}

func TestOrderStatusValidity(t *testing.T) {
	assert.True(t, StatusPreparing.IsValid())
	assert.False(t, OrderStatus("shipped").IsValid())
	assert.False(t, OrderStatus("").IsValid())
}

func TestLiveStatusesExcludeTerminal(t *testing.T) {
	for _, s := range LiveStatuses {
		assert.Falsef(t, s.IsTerminal(), "live status %s must not be terminal", s)
	}
	assert.Contains(t, LiveStatuses, StatusPaymentFailed)
}

func TestFulfillmentTypeValidity(t *testing.T) {
	assert.True(t, FulfillmentDelivery.IsValid())
	assert.True(t, FulfillmentPickup.IsValid())
	assert.False(t, FulfillmentType("dine_in").IsValid())
}
