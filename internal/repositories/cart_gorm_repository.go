package repositories

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMCartRepository stores cart lines in the cart_items table.
type GORMCartRepository struct {
	db *gorm.DB
}

// NewGORMCartRepository creates a new instance of GORMCartRepository.
func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{db: db}
}

// ListByUser returns the user's lines, oldest first.
func (r *GORMCartRepository) ListByUser(ctx context.Context, userID string) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at, product_id").
		Find(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines for user %s: %w", userID, err)
	}
	return lines, nil
}

// Get returns the line for (userID, productID).
func (r *GORMCartRepository) Get(ctx context.Context, userID, productID string) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartLineNotFound
		}
		return nil, fmt.Errorf("failed to get cart line: %w", err)
	}
	return &line, nil
}

// Insert creates a new line. A concurrent insert of the same pair fails with ErrDuplicateCartLine.
func (r *GORMCartRepository) Insert(ctx context.Context, line *models.CartLine) error {
	if line.ID == "" {
		line.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(line).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateCartLine
		}
		return fmt.Errorf("failed to insert cart line: %w", err)
	}
	return nil
}

// SetQuantity replaces the quantity of an existing line.
func (r *GORMCartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	res := r.db.WithContext(ctx).Model(&models.CartLine{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("quantity", quantity)
	if res.Error != nil {
		return fmt.Errorf("failed to update cart line quantity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCartLineNotFound
	}
	return nil
}

// IncrementQuantity runs quantity = quantity + delta in one UPDATE, so concurrent
// adds to the same line never overwrite each other.
func (r *GORMCartRepository) IncrementQuantity(ctx context.Context, userID, productID string, delta int) error {
	res := r.db.WithContext(ctx).Model(&models.CartLine{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("quantity", gorm.Expr("quantity + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("failed to increment cart line quantity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCartLineNotFound
	}
	return nil
}

// Delete removes one line. Removing an absent line is not an error.
func (r *GORMCartRepository) Delete(ctx context.Context, userID, productID string) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.CartLine{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete cart line: %w", err)
	}
	return nil
}

// DeleteAll removes every line the user owns.
func (r *GORMCartRepository) DeleteAll(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.CartLine{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear cart for user %s: %w", userID, err)
	}
	return nil
}
