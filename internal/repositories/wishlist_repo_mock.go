package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
)

// MockWishlistRepository is an in-memory implementation of WishlistRepository.
type MockWishlistRepository struct {
	items map[cartKey]models.WishlistItem
	mu    sync.RWMutex
}

// NewMockWishlistRepository creates a new instance of MockWishlistRepository.
func NewMockWishlistRepository() *MockWishlistRepository {
	return &MockWishlistRepository{items: make(map[cartKey]models.WishlistItem)}
}

func (r *MockWishlistRepository) ListByUser(_ context.Context, userID string) ([]models.WishlistItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []models.WishlistItem
	for k, item := range r.items {
		if k.userID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ProductID < items[j].ProductID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (r *MockWishlistRepository) Exists(_ context.Context, userID, productID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.items[cartKey{userID, productID}]
	return ok, nil
}

func (r *MockWishlistRepository) Insert(_ context.Context, item *models.WishlistItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cartKey{item.UserID, item.ProductID}
	if _, ok := r.items[key]; ok {
		return ErrDuplicateWishlistItem
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.CreatedAt = time.Now()
	r.items[key] = *item
	return nil
}

func (r *MockWishlistRepository) Delete(_ context.Context, userID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, cartKey{userID, productID})
	return nil
}
