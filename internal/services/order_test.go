package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-system/internal/dto"
	"delivery-system/internal/entities"
	apperrors "delivery-system/pkg/errors"
)

const tolerance = 0.01

func validDeliverySnapshot() dto.PricingSnapshot {
	return dto.PricingSnapshot{
		Version:     "v3",
		Subtotal:    42.50,
		TaxRate:     0.08,
		TaxAmount:   3.40,
		DeliveryFee: 4.99,
		SoftwareFee: 1.00,
		Tip:         5.00,
		Discount:    2.00,
		Total:       54.89,
		Currency:    "USD",
		Delivery: &dto.DeliverySnapshot{
			Address:   "12 Main St",
			Latitude:  38.56,
			Longitude: 68.78,
			Fee:       4.99,
		},
	}
}

func cartItemsFor(subtotal float64) []entities.CartItem {
	return []entities.CartItem{
		{ProductName: "Plov", UnitPrice: subtotal / 2, Quantity: 1, LineTotal: subtotal / 2},
		{ProductName: "Tea", UnitPrice: subtotal / 2, Quantity: 1, LineTotal: subtotal / 2},
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var httpErr *apperrors.HttpError
	require.True(t, errors.As(err, &httpErr), "expected HttpError, got %v", err)
	assert.Equal(t, code, httpErr.Code)
}

func TestValidateSnapshotAcceptsConsistentDelivery(t *testing.T) {
	snap := validDeliverySnapshot()
	err := validateSnapshot(snap, cartItemsFor(snap.Subtotal), entities.FulfillmentDelivery, tolerance)
	assert.NoError(t, err)
}

func TestValidateSnapshotAcceptsPickupWithoutDeliverySection(t *testing.T) {
	snap := validDeliverySnapshot()
	snap.Delivery = nil
	snap.DeliveryFee = 0
	snap.Total = snap.Subtotal + snap.TaxAmount + snap.SoftwareFee + snap.Tip - snap.Discount
	err := validateSnapshot(snap, cartItemsFor(snap.Subtotal), entities.FulfillmentPickup, tolerance)
	assert.NoError(t, err)
}

func TestValidateSnapshotRejectsStaleSubtotal(t *testing.T) {
	snap := validDeliverySnapshot()
	// The cart changed after the quote was issued.
	err := validateSnapshot(snap, cartItemsFor(snap.Subtotal+1.50), entities.FulfillmentDelivery, tolerance)
	assertCode(t, err, apperrors.CodeSubtotalMismatch)
}

func TestValidateSnapshotToleratesSubCentDrift(t *testing.T) {
	snap := validDeliverySnapshot()
	err := validateSnapshot(snap, cartItemsFor(snap.Subtotal+0.009), entities.FulfillmentDelivery, tolerance)
	assert.NoError(t, err)
}

func TestValidateSnapshotRejectsInconsistentComponents(t *testing.T) {
	snap := validDeliverySnapshot()
	snap.Total += 3.00
	err := validateSnapshot(snap, cartItemsFor(snap.Subtotal), entities.FulfillmentDelivery, tolerance)
	assertCode(t, err, apperrors.CodeSnapshotInconsistent)
}

func TestValidateSnapshotRejectsNonPositiveTotal(t *testing.T) {
	snap := validDeliverySnapshot()
	snap.Subtotal = 0
	snap.TaxAmount = 0
	snap.DeliveryFee = 0
	snap.SoftwareFee = 0
	snap.Tip = 0
	snap.Discount = 0
	snap.Total = 0
	err := validateSnapshot(snap, nil, entities.FulfillmentPickup, tolerance)
	assertCode(t, err, apperrors.CodeInvalidTotal)
}

func TestValidateSnapshotRequiresDeliverySection(t *testing.T) {
	snap := validDeliverySnapshot()
	snap.Delivery = nil
	err := validateSnapshot(snap, cartItemsFor(snap.Subtotal), entities.FulfillmentDelivery, tolerance)
	assertCode(t, err, apperrors.CodeDeliverySnapMissing)

	snap = validDeliverySnapshot()
	snap.Delivery.Latitude = 0
	snap.Delivery.Longitude = 0
	err = validateSnapshot(snap, cartItemsFor(snap.Subtotal), entities.FulfillmentDelivery, tolerance)
	assertCode(t, err, apperrors.CodeDeliverySnapMissing)
}

func TestValidateSnapshotRejectsDivergentDeliveryFee(t *testing.T) {
	snap := validDeliverySnapshot()
	snap.Delivery.Fee = snap.DeliveryFee + 0.50
	err := validateSnapshot(snap, cartItemsFor(snap.Subtotal), entities.FulfillmentDelivery, tolerance)
	assertCode(t, err, apperrors.CodeDeliveryFeeMismatch)
}

func TestMoneyEqualTolerance(t *testing.T) {
	assert.True(t, moneyEqual(10.00, 10.00, tolerance))
	assert.True(t, moneyEqual(10.00, 10.01, tolerance))
	assert.True(t, moneyEqual(10.01, 10.00, tolerance))
	assert.False(t, moneyEqual(10.00, 10.02, tolerance))
}

func TestOrderNumberShape(t *testing.T) {
	n := newOrderNumber()
	assert.True(t, strings.HasPrefix(n, "ORD-"))
	assert.Len(t, n, len("ORD-")+12)
	assert.NotEqual(t, n, newOrderNumber())
}

func TestCheckTransitionErrorShapes(t *testing.T) {
	err := checkTransition(entities.StatusPreparing, entities.StatusPreparing)
	assertCode(t, err, apperrors.CodeSameStatus)

	err = checkTransition(entities.StatusCompleted, entities.StatusPreparing)
	assertCode(t, err, apperrors.CodeTerminalStatus)

	err = checkTransition(entities.StatusConfirmed, entities.StatusOutForDelivery)
	assertCode(t, err, apperrors.CodeInvalidTransition)
	var httpErr *apperrors.HttpError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, map[string]interface{}{"allowed": []string{"preparing", "cancelled"}}, httpErr.Details)

	assert.NoError(t, checkTransition(entities.StatusReady, entities.StatusCompleted))
}
