package services

import (
	"context"
	"errors"
	"log"
	"sync"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

// addItemAttempts bounds the upsert in AddItem: the first try plus one retry.
const addItemAttempts = 2

// cartSlot holds one user's published view and the refreshes still running for them.
type cartSlot struct {
	seq      uint64
	view     models.CartView
	held     bool
	inflight int
}

// CartService keeps each user's cart view in step with the store.
// Every mutation ends with a full Refresh; views are never patched in place.
// Empty views are dropped once no refresh for the user is running, so the
// service only holds state for users with lines in the store.
type CartService struct {
	cartRepo    repositories.CartRepository
	productRepo repositories.ProductRepository

	mu    sync.Mutex
	seq   uint64
	slots map[string]*cartSlot
}

// NewCartService creates a new CartService.
func NewCartService(cartRepo repositories.CartRepository, productRepo repositories.ProductRepository) *CartService {
	return &CartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		slots:       make(map[string]*cartSlot),
	}
}

// View returns the last successfully refreshed view for userID, or an empty one.
func (s *CartService) View(userID string) models.CartView {
	view, _ := s.CurrentView(userID)
	return view
}

// CurrentView is View plus whether a non-empty view is held for the user.
func (s *CartService) CurrentView(userID string) (models.CartView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[userID]
	if !ok || !slot.held {
		return models.NewCartView(userID, nil, nil), false
	}
	return slot.view, true
}

// Tracked reports how many users the service currently holds state for.
func (s *CartService) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Refresh rebuilds the user's view from the store. Lines whose product no longer
// resolves are dropped. With no user it returns an empty view and no error.
// On failure the previously published view stays in place and is returned.
func (s *CartService) Refresh(ctx context.Context, userID string) (models.CartView, error) {
	if userID == "" {
		return models.NewCartView("", nil, nil), nil
	}
	seq := s.begin(userID)

	lines, err := s.cartRepo.ListByUser(ctx, userID)
	if err != nil {
		return s.abandon(userID), cartFailure("refresh", err)
	}
	products, err := s.resolve(ctx, lines)
	if err != nil {
		return s.abandon(userID), cartFailure("refresh", err)
	}

	return s.publish(userID, seq, models.NewCartView(userID, lines, products)), nil
}

// Revalidate re-reads the products behind view's lines and rebuilds it, keeping
// the view's quantities. Products deleted since view was built drop out and
// deactivated ones become unavailable. The result is not published.
func (s *CartService) Revalidate(ctx context.Context, view models.CartView) (models.CartView, error) {
	lines := make([]models.CartLine, 0, len(view.Entries))
	for _, entry := range view.Entries {
		lines = append(lines, entry.Line)
	}
	products, err := s.resolve(ctx, lines)
	if err != nil {
		return view, cartFailure("revalidate", err)
	}
	return models.NewCartView(view.UserID, lines, products), nil
}

func (s *CartService) resolve(ctx context.Context, lines []models.CartLine) (map[string]models.Product, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return s.productRepo.GetByIDs(ctx, ids)
}

// AddItem adds quantity of productID to the user's cart, incrementing an existing
// line rather than creating a second one.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (models.CartView, error) {
	if userID == "" {
		return models.NewCartView("", nil, nil), ErrUnauthenticated
	}
	if quantity < 1 {
		return s.View(userID), validationError("quantity must be at least 1, got %d", quantity)
	}

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return s.View(userID), err
		}
		return s.View(userID), cartFailure("add item", err)
	}
	if !product.IsActive {
		return s.View(userID), validationError("product %s is not available", product.ID)
	}

	for attempt := 1; attempt <= addItemAttempts; attempt++ {
		err = s.upsertLine(ctx, userID, productID, quantity)
		if err == nil || !errors.Is(err, repositories.ErrDuplicateCartLine) {
			break
		}
		log.Printf("Add item attempt %d for user %s, product %s lost the insert race: %v", attempt, userID, productID, err)
	}
	if err != nil {
		return s.View(userID), cartFailure("add item", err)
	}
	return s.Refresh(ctx, userID)
}

// upsertLine increments an existing line in place or inserts a new one. Two first
// adds racing on the same product leave one insert failing with
// ErrDuplicateCartLine; only that outcome is safe to retry, since the line now
// exists and the retry takes the increment path.
func (s *CartService) upsertLine(ctx context.Context, userID, productID string, quantity int) error {
	err := s.cartRepo.IncrementQuantity(ctx, userID, productID, quantity)
	if !errors.Is(err, repositories.ErrCartLineNotFound) {
		return err
	}
	return s.cartRepo.Insert(ctx, &models.CartLine{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	})
}

// UpdateQuantity sets a line's quantity. Zero or negative removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (models.CartView, error) {
	if userID == "" {
		return models.NewCartView("", nil, nil), ErrUnauthenticated
	}
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	err := s.cartRepo.SetQuantity(ctx, userID, productID, quantity)
	if errors.Is(err, repositories.ErrCartLineNotFound) {
		// Removed elsewhere; bring the view up to date before reporting it.
		view, _ := s.Refresh(ctx, userID)
		return view, err
	}
	if err != nil {
		return s.View(userID), cartFailure("update quantity", err)
	}
	return s.Refresh(ctx, userID)
}

// RemoveItem deletes one line. Removing an absent line succeeds.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (models.CartView, error) {
	if userID == "" {
		return models.NewCartView("", nil, nil), ErrUnauthenticated
	}
	if err := s.cartRepo.Delete(ctx, userID, productID); err != nil {
		return s.View(userID), cartFailure("remove item", err)
	}
	return s.Refresh(ctx, userID)
}

// ClearCart deletes every line the user owns.
func (s *CartService) ClearCart(ctx context.Context, userID string) (models.CartView, error) {
	if userID == "" {
		return models.NewCartView("", nil, nil), ErrUnauthenticated
	}
	if err := s.cartRepo.DeleteAll(ctx, userID); err != nil {
		return s.View(userID), cartFailure("clear cart", err)
	}
	return s.Refresh(ctx, userID)
}

// begin registers a running refresh for userID and returns its sequence number.
// Sequence numbers are global so a slot recreated after eviction still orders
// correctly against refreshes that started before it.
func (s *CartService) begin(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[userID]
	if !ok {
		slot = &cartSlot{}
		s.slots[userID] = slot
	}
	slot.inflight++
	s.seq++
	return s.seq
}

// abandon ends a failed refresh and returns the view still held.
func (s *CartService) abandon(userID string) models.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.slots[userID]
	slot.inflight--
	view := slot.view
	if !slot.held {
		view = models.NewCartView(userID, nil, nil)
	}
	s.evictIfIdle(userID, slot)
	return view
}

// publish stores view unless a refresh that started later has already been stored,
// and returns whichever view is current afterwards.
func (s *CartService) publish(userID string, seq uint64, view models.CartView) models.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.slots[userID]
	slot.inflight--
	if !slot.held || slot.seq < seq {
		slot.seq = seq
		slot.view = view
		slot.held = true
	}
	current := slot.view
	s.evictIfIdle(userID, slot)
	return current
}

// evictIfIdle drops the slot when nothing is running for the user and there is
// no non-empty view worth keeping. Callers hold s.mu.
func (s *CartService) evictIfIdle(userID string, slot *cartSlot) {
	if slot.inflight > 0 {
		return
	}
	if !slot.held || slot.view.Empty() {
		delete(s.slots, userID)
	}
}
