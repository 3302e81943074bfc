package repositories

import (
	"context"

	"storefront/internal/models"
)

// WishlistRepository stores wishlist membership rows.
type WishlistRepository interface {
	ListByUser(ctx context.Context, userID string) ([]models.WishlistItem, error)
	Exists(ctx context.Context, userID, productID string) (bool, error)
	Insert(ctx context.Context, item *models.WishlistItem) error
	Delete(ctx context.Context, userID, productID string) error
}
