package repositories

import (
	"context"

	"storefront/internal/models"
)

// OrderRepository defines the interface for order data access.
// Orders are never deleted, only moved through their status.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
	// UpdateStatus applies to only if the stored status still equals from.
	UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus) error
}
