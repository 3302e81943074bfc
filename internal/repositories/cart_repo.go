package repositories

import (
	"context"

	"storefront/internal/models"
)

// CartRepository is the store side of a user's cart rows.
// The (user, product) unique index is the authoritative guard against duplicate lines.
type CartRepository interface {
	ListByUser(ctx context.Context, userID string) ([]models.CartLine, error)
	Get(ctx context.Context, userID, productID string) (*models.CartLine, error)
	Insert(ctx context.Context, line *models.CartLine) error
	SetQuantity(ctx context.Context, userID, productID string, quantity int) error
	// IncrementQuantity adds delta to an existing line in a single store write.
	IncrementQuantity(ctx context.Context, userID, productID string, delta int) error
	Delete(ctx context.Context, userID, productID string) error
	DeleteAll(ctx context.Context, userID string) error
}
