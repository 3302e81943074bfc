package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
)

// MockOrderRepository is an in-memory implementation of OrderRepository.
type MockOrderRepository struct {
	orders map[string]models.Order
	mu     sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
	}
}

// Create adds a new order.
func (r *MockOrderRepository) Create(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.IdempotencyKey != nil {
		for _, existing := range r.orders {
			if existing.UserID == order.UserID && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *order.IdempotencyKey {
				return ErrDuplicateOrder
			}
		}
	}
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	r.orders[order.ID] = cloneOrder(*order)
	return nil
}

// GetByID returns an order by its ID.
func (r *MockOrderRepository) GetByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
	}
	order = cloneOrder(order)
	return &order, nil
}

// GetByIdempotencyKey returns the order userID created with key.
func (r *MockOrderRepository) GetByIdempotencyKey(_ context.Context, userID, key string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.orders {
		if order.UserID == userID && order.IdempotencyKey != nil && *order.IdempotencyKey == key {
			order = cloneOrder(order)
			return &order, nil
		}
	}
	return nil, ErrOrderNotFound
}

// ListByUser returns a user's orders, newest first.
func (r *MockOrderRepository) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orderList []models.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			orderList = append(orderList, cloneOrder(order))
		}
	}
	sortNewestFirst(orderList)
	return orderList, nil
}

// ListAll returns all orders, newest first.
func (r *MockOrderRepository) ListAll(_ context.Context) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orderList := make([]models.Order, 0, len(r.orders))
	for _, order := range r.orders {
		orderList = append(orderList, cloneOrder(order))
	}
	sortNewestFirst(orderList)
	return orderList, nil
}

// UpdateStatus updates the status of an order if it is still from.
func (r *MockOrderRepository) UpdateStatus(_ context.Context, id string, from, to models.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order with ID %s for status update: %w", id, ErrOrderNotFound)
	}
	if order.Status != from {
		return ErrOrderStatusConflict
	}
	order.Status = to
	order.UpdatedAt = time.Now()
	r.orders[id] = order
	return nil
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return o
}

func sortNewestFirst(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
}
