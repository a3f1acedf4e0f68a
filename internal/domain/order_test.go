package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T, serviceType ServiceType) *Order {
	t.Helper()
	order, err := NewOrder(7, 3, serviceType, []OrderItem{
		{ProductID: 1, Name: "Margherita", Quantity: 2, UnitPrice: 1250,
			Options: []SelectedOption{{Section: "Crust", Option: "Thin", PriceModifier: 150}}},
		{ProductID: 2, Name: "Cola", Quantity: 1, UnitPrice: 300},
	}, time.Now())
	require.NoError(t, err)
	return order
}

func TestNewOrder_ComputesTotals(t *testing.T) {
	order := newTestOrder(t, ServiceTypePickup)

	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, Money(3100), order.Subtotal)
	assert.Equal(t, Money(0), order.Discount)
	assert.Equal(t, Money(3100), order.Total)
	assert.True(t, order.PointsEligible)
}

func TestNewOrder_Validation(t *testing.T) {
	_, err := NewOrder(7, 3, ServiceType("drive_through"), []OrderItem{{ProductID: 1, Name: "x", Quantity: 1}}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidServiceType)

	_, err = NewOrder(7, 3, ServiceTypePickup, nil, time.Now())
	assert.Error(t, err)

	_, err = NewOrder(7, 3, ServiceTypePickup, []OrderItem{
		{ProductID: 1, Name: "x", Quantity: 1, UnitPrice: 100, Options: []SelectedOption{{PriceModifier: -200}}},
	}, time.Now())
	assert.Error(t, err)
}

func TestApplyPromotion_SecondApplicationIsNoop(t *testing.T) {
	order := newTestOrder(t, ServiceTypePickup)
	applied := AppliedPromotion{PromotionID: 5, Type: PromotionPercentageDiscount, Discount: 310}

	require.True(t, order.ApplyPromotion(applied))
	total := order.Total

	assert.False(t, order.ApplyPromotion(applied))
	assert.Equal(t, total, order.Total)
	assert.Len(t, order.AppliedPromotions, 1)
}

func TestApplyPromotion_DiscountCappedAtSubtotal(t *testing.T) {
	order := newTestOrder(t, ServiceTypePickup)

	order.ApplyPromotion(AppliedPromotion{PromotionID: 1, Discount: 10_000})

	assert.Equal(t, order.Subtotal, order.Discount)
	assert.Equal(t, Money(0), order.Total)
}

func TestEarnablePoints_Floors(t *testing.T) {
	order := newTestOrder(t, ServiceTypePickup)
	order.AddPointsCredit(1)

	// 30.99 at 1 point per unit
	assert.Equal(t, int64(30), order.EarnablePoints(decimal.NewFromInt(1)))
	assert.Equal(t, int64(46), order.EarnablePoints(decimal.RequireFromString("1.5")))

	order.PointsEligible = false
	assert.Zero(t, order.EarnablePoints(decimal.NewFromInt(1)))
}

func TestTransitionTo(t *testing.T) {
	order := newTestOrder(t, ServiceTypeDineIn)
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, order.TransitionTo(StatusPreparing, at))
	require.NotNil(t, order.PreviousStatus)
	assert.Equal(t, StatusPending, *order.PreviousStatus)
	assert.Equal(t, at, *order.StatusChangedAt)

	require.NoError(t, order.TransitionTo(StatusReady, at))
	require.NoError(t, order.TransitionTo(StatusCompleted, at))
	assert.Equal(t, at, *order.CompletedAt)

	err := order.TransitionTo(StatusCancelled, at)
	var transition *InvalidTransitionError
	require.True(t, errors.As(err, &transition))
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	assert.Equal(t, StatusCompleted, order.Status)
	assert.Nil(t, order.CancelledAt)
}

func TestClone_IsIndependent(t *testing.T) {
	order := newTestOrder(t, ServiceTypePickup)
	order.ApplyPromotion(AppliedPromotion{PromotionID: 1, Discount: 100})
	require.NoError(t, order.TransitionTo(StatusPreparing, time.Now()))

	c := order.Clone()
	c.Items[0].Options[0].Option = "Deep"
	c.Items[1].Quantity = 9
	c.AppliedPromotions[0].Discount = 0
	*c.PreviousStatus = StatusCancelled

	assert.Equal(t, "Thin", order.Items[0].Options[0].Option)
	assert.Equal(t, 1, order.Items[1].Quantity)
	assert.Equal(t, Money(100), order.AppliedPromotions[0].Discount)
	assert.Equal(t, StatusPending, *order.PreviousStatus)
}

func TestInvalidOrderError_Message(t *testing.T) {
	assert.Equal(t, "order 12: points can only be redeemed on pending orders",
		(&InvalidOrderError{OrderID: 12, Reason: "points can only be redeemed on pending orders"}).Error())
	assert.Equal(t, "invalid order: order must have 1-50 items",
		(&InvalidOrderError{Reason: "order must have 1-50 items"}).Error())
}
