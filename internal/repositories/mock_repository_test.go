package repositories_test

import (
	"context"
	"testing"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockCartRepository_MatchesStoreContract(t *testing.T) {
	repo := repositories.NewMockCartRepository()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &models.CartLine{UserID: "u1", ProductID: "p2", Quantity: 1}))
	require.NoError(t, repo.Insert(ctx, &models.CartLine{UserID: "u1", ProductID: "p1", Quantity: 1}))
	assert.ErrorIs(t, repo.Insert(ctx, &models.CartLine{UserID: "u1", ProductID: "p1", Quantity: 1}), repositories.ErrDuplicateCartLine)

	lines, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "p2", lines[0].ProductID, "lines come back in insertion order")

	assert.ErrorIs(t, repo.SetQuantity(ctx, "u1", "p9", 2), repositories.ErrCartLineNotFound)
	assert.ErrorIs(t, repo.IncrementQuantity(ctx, "u1", "p9", 2), repositories.ErrCartLineNotFound)
	require.NoError(t, repo.IncrementQuantity(ctx, "u1", "p1", 4))
	line, err := repo.Get(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, line.Quantity)
	require.NoError(t, repo.Delete(ctx, "u1", "p9"))
}

func TestMockOrderRepository_StatusConflict(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	ctx := context.Background()

	order := &models.Order{UserID: "u1", Status: models.OrderStatusPending}
	require.NoError(t, repo.Create(ctx, order))

	require.NoError(t, repo.UpdateStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCancelled))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusProcessing), repositories.ErrOrderStatusConflict)

	_, err := repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, repositories.ErrOrderNotFound)
}
