package repositories

import (
	"context"
	"fmt"

	"storefront/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMWishlistRepository stores wishlist rows in wishlist_items.
type GORMWishlistRepository struct {
	db *gorm.DB
}

// NewGORMWishlistRepository creates a new instance of GORMWishlistRepository.
func NewGORMWishlistRepository(db *gorm.DB) *GORMWishlistRepository {
	return &GORMWishlistRepository{db: db}
}

func (r *GORMWishlistRepository) ListByUser(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	var items []models.WishlistItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at, product_id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist for user %s: %w", userID, err)
	}
	return items, nil
}

func (r *GORMWishlistRepository) Exists(ctx context.Context, userID, productID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WishlistItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check wishlist item: %w", err)
	}
	return count > 0, nil
}

func (r *GORMWishlistRepository) Insert(ctx context.Context, item *models.WishlistItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateWishlistItem
		}
		return fmt.Errorf("failed to insert wishlist item: %w", err)
	}
	return nil
}

func (r *GORMWishlistRepository) Delete(ctx context.Context, userID, productID string) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.WishlistItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete wishlist item: %w", err)
	}
	return nil
}
