package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
)

type cartKey struct {
	userID    string
	productID string
}

// MockCartRepository is an in-memory implementation of CartRepository.
type MockCartRepository struct {
	lines map[cartKey]models.CartLine
	seq   int64
	order map[cartKey]int64
	mu    sync.RWMutex
}

// NewMockCartRepository creates a new instance of MockCartRepository.
func NewMockCartRepository() *MockCartRepository {
	return &MockCartRepository{
		lines: make(map[cartKey]models.CartLine),
		order: make(map[cartKey]int64),
	}
}

// ListByUser returns the user's lines in insertion order.
func (r *MockCartRepository) ListByUser(_ context.Context, userID string) ([]models.CartLine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []cartKey
	for k := range r.lines {
		if k.userID == userID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return r.order[keys[i]] < r.order[keys[j]] })

	lines := make([]models.CartLine, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, r.lines[k])
	}
	return lines, nil
}

// Get returns the line for (userID, productID).
func (r *MockCartRepository) Get(_ context.Context, userID, productID string) (*models.CartLine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	line, ok := r.lines[cartKey{userID, productID}]
	if !ok {
		return nil, ErrCartLineNotFound
	}
	return &line, nil
}

// Insert adds a line, enforcing (user, product) uniqueness.
func (r *MockCartRepository) Insert(_ context.Context, line *models.CartLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cartKey{line.UserID, line.ProductID}
	if _, exists := r.lines[key]; exists {
		return ErrDuplicateCartLine
	}
	if line.ID == "" {
		line.ID = uuid.New().String()
	}
	now := time.Now()
	line.CreatedAt = now
	line.UpdatedAt = now
	r.seq++
	r.order[key] = r.seq
	r.lines[key] = *line
	return nil
}

// SetQuantity replaces the quantity of an existing line.
func (r *MockCartRepository) SetQuantity(_ context.Context, userID, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cartKey{userID, productID}
	line, ok := r.lines[key]
	if !ok {
		return ErrCartLineNotFound
	}
	line.Quantity = quantity
	line.UpdatedAt = time.Now()
	r.lines[key] = line
	return nil
}

// IncrementQuantity adds delta to an existing line under the write lock.
func (r *MockCartRepository) IncrementQuantity(_ context.Context, userID, productID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cartKey{userID, productID}
	line, ok := r.lines[key]
	if !ok {
		return ErrCartLineNotFound
	}
	line.Quantity += delta
	line.UpdatedAt = time.Now()
	r.lines[key] = line
	return nil
}

// Delete removes one line; absent lines are ignored.
func (r *MockCartRepository) Delete(_ context.Context, userID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cartKey{userID, productID}
	delete(r.lines, key)
	delete(r.order, key)
	return nil
}

// DeleteAll removes every line for userID.
func (r *MockCartRepository) DeleteAll(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k := range r.lines {
		if k.userID == userID {
			delete(r.lines, k)
			delete(r.order, k)
		}
	}
	return nil
}
