package models

import "time"

// WishlistItem marks a product as saved by a user. No quantity, membership only.
type WishlistItem struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_wishlist_items_user_product"`
	ProductID string    `json:"product_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_wishlist_items_user_product"`
	CreatedAt time.Time `json:"created_at"`
}

// WishlistEntry is a wishlist item joined with its current product.
type WishlistEntry struct {
	Item    WishlistItem `json:"item"`
	Product Product      `json:"product"`
}
