package services

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

// WishlistService keeps the set of products a user has saved for later.
// Like the cart, every mutation answers with a fresh read of the store.
type WishlistService struct {
	wishlistRepo repositories.WishlistRepository
	productRepo  repositories.ProductRepository
}

// NewWishlistService creates a new WishlistService.
func NewWishlistService(wishlistRepo repositories.WishlistRepository, productRepo repositories.ProductRepository) *WishlistService {
	return &WishlistService{
		wishlistRepo: wishlistRepo,
		productRepo:  productRepo,
	}
}

// List returns the user's saved products, oldest first. Deleted products are skipped.
func (s *WishlistService) List(ctx context.Context, userID string) ([]models.WishlistEntry, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	items, err := s.wishlistRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wishlist products: %w", err)
	}

	entries := make([]models.WishlistEntry, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			continue
		}
		entries = append(entries, models.WishlistEntry{Item: item, Product: product})
	}
	return entries, nil
}

// Toggle adds productID when absent and removes it when present. It reports
// whether the product is saved afterwards.
func (s *WishlistService) Toggle(ctx context.Context, userID, productID string) (bool, []models.WishlistEntry, error) {
	if userID == "" {
		return false, nil, ErrUnauthenticated
	}
	exists, err := s.wishlistRepo.Exists(ctx, userID, productID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to check wishlist: %w", err)
	}

	added := !exists
	if exists {
		if err := s.wishlistRepo.Delete(ctx, userID, productID); err != nil {
			return false, nil, fmt.Errorf("failed to remove from wishlist: %w", err)
		}
	} else {
		if _, err := s.productRepo.GetByID(ctx, productID); err != nil {
			return false, nil, err
		}
		err := s.wishlistRepo.Insert(ctx, &models.WishlistItem{UserID: userID, ProductID: productID})
		// A concurrent toggle got there first; the product is saved either way.
		if err != nil && !errors.Is(err, repositories.ErrDuplicateWishlistItem) {
			return false, nil, fmt.Errorf("failed to add to wishlist: %w", err)
		}
	}

	entries, err := s.List(ctx, userID)
	return added, entries, err
}

// Remove unsaves productID. Removing an unsaved product succeeds.
func (s *WishlistService) Remove(ctx context.Context, userID, productID string) ([]models.WishlistEntry, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if err := s.wishlistRepo.Delete(ctx, userID, productID); err != nil {
		return nil, fmt.Errorf("failed to remove from wishlist: %w", err)
	}
	return s.List(ctx, userID)
}
