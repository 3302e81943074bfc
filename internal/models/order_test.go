package models_test

import (
	"testing"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.OrderStatus
		want     bool
	}{
		{models.OrderStatusPending, models.OrderStatusProcessing, true},
		{models.OrderStatusPending, models.OrderStatusCancelled, true},
		{models.OrderStatusProcessing, models.OrderStatusShipped, true},
		{models.OrderStatusProcessing, models.OrderStatusCancelled, true},
		{models.OrderStatusShipped, models.OrderStatusCompleted, true},
		{models.OrderStatusPending, models.OrderStatusShipped, false},
		{models.OrderStatusPending, models.OrderStatusCompleted, false},
		{models.OrderStatusShipped, models.OrderStatusCancelled, false},
		{models.OrderStatusCancelled, models.OrderStatusCompleted, false},
		{models.OrderStatusCancelled, models.OrderStatusPending, false},
		{models.OrderStatusCompleted, models.OrderStatusCancelled, false},
		{models.OrderStatusPending, models.OrderStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, models.CanTransition(tt.from, tt.to))
		})
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.True(t, models.OrderStatusCompleted.IsTerminal())
	assert.True(t, models.OrderStatusCancelled.IsTerminal())
	assert.False(t, models.OrderStatusPending.IsTerminal())
	assert.False(t, models.OrderStatus("refunded").Valid())
}

func TestOrder_TransitionTo(t *testing.T) {
	order := &models.Order{Status: models.OrderStatusCancelled}
	err := order.TransitionTo(models.OrderStatusCompleted)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)

	order = &models.Order{Status: models.OrderStatusPending}
	assert.NoError(t, order.TransitionTo(models.OrderStatusCancelled))
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
}

func TestOrder_ComputeTotal(t *testing.T) {
	order := &models.Order{Items: []models.OrderItem{
		{ProductID: "a", UnitPrice: decimal.RequireFromString("19.99"), Quantity: 3},
		{ProductID: "b", UnitPrice: decimal.RequireFromString("0.01"), Quantity: 1},
	}}
	assert.Equal(t, "59.98", order.ComputeTotal().StringFixed(2))
}
