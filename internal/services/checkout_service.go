package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"storefront/internal/idempotency"
	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order event routing.
const (
	OrderEventsExchange     = "orders"
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	DefaultIdempotencyTTL   = 24 * time.Hour
	maxIdempotencyKeyLength = 128
)

// EventPublisher sends an event body to an exchange under a routing key.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// CapabilityChecker answers whether a principal may perform a privileged action.
type CapabilityChecker interface {
	HasCapability(principal models.Principal, capability string) bool
}

// CheckoutRequest is what a user submits to turn their cart into an order.
type CheckoutRequest struct {
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	IdempotencyKey  string                 `json:"-"`
}

// CheckoutService converts carts into orders and moves orders through their lifecycle.
type CheckoutService struct {
	orderRepo repositories.OrderRepository
	carts     *CartService
	keys      idempotency.Store
	publisher EventPublisher
	caps      CapabilityChecker
	validate  *validator.Validate
	keyTTL    time.Duration
}

// NewCheckoutService creates a new CheckoutService. publisher may be nil, in which
// case events are skipped. A non-positive keyTTL selects DefaultIdempotencyTTL.
func NewCheckoutService(
	orderRepo repositories.OrderRepository,
	carts *CartService,
	keys idempotency.Store,
	publisher EventPublisher,
	caps CapabilityChecker,
	keyTTL time.Duration,
) *CheckoutService {
	if keyTTL <= 0 {
		keyTTL = DefaultIdempotencyTTL
	}
	return &CheckoutService{
		orderRepo: orderRepo,
		carts:     carts,
		keys:      keys,
		publisher: publisher,
		caps:      caps,
		validate:  validator.New(),
		keyTTL:    keyTTL,
	}
}

// CreateOrder places an order from the user's current cart view. The view is what
// the user last saw; it is only refreshed here if none has been published yet.
func (s *CheckoutService) CreateOrder(ctx context.Context, userID string, req CheckoutRequest) (*models.Order, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if err := s.validate.Struct(req.ShippingAddress); err != nil {
		return nil, validationError("shipping address: %v", err)
	}

	if req.IdempotencyKey == "" {
		order, err := s.placeOrder(ctx, userID, req.ShippingAddress, nil)
		if err != nil {
			return nil, err
		}
		s.afterPlaced(ctx, order)
		return order, nil
	}

	if len(req.IdempotencyKey) > maxIdempotencyKeyLength {
		return nil, validationError("idempotency key longer than %d characters", maxIdempotencyKeyLength)
	}
	existing, err := s.claimKey(ctx, userID, req.IdempotencyKey)
	if err != nil || existing != nil {
		return existing, err
	}

	storeKey := idempotency.CheckoutKey(userID, req.IdempotencyKey)
	key := req.IdempotencyKey
	order, err := s.placeOrder(ctx, userID, req.ShippingAddress, &key)
	if errors.Is(err, repositories.ErrDuplicateOrder) {
		// Another instance finished this key first.
		s.releaseKey(ctx, storeKey)
		return s.orderRepo.GetByIdempotencyKey(ctx, userID, key)
	}
	if err != nil {
		s.releaseKey(ctx, storeKey)
		return nil, err
	}
	if err := s.keys.Complete(ctx, storeKey, order.ID, s.keyTTL); err != nil {
		log.Printf("Warning: failed to record idempotency key for order %s: %v", order.ID, err)
	}
	s.afterPlaced(ctx, order)
	return order, nil
}

// claimKey returns the order already produced under key, or reserves the key for
// a new checkout and returns nil.
func (s *CheckoutService) claimKey(ctx context.Context, userID, key string) (*models.Order, error) {
	order, err := s.orderRepo.GetByIdempotencyKey(ctx, userID, key)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, repositories.ErrOrderNotFound) {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	storeKey := idempotency.CheckoutKey(userID, key)
	reserved, err := s.keys.Reserve(ctx, storeKey, s.keyTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if reserved {
		return nil, nil
	}

	value, err := s.keys.Lookup(ctx, storeKey)
	if err != nil || value == idempotency.Pending {
		return nil, ErrCheckoutInProgress
	}
	order, err = s.orderRepo.GetByID(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("failed to load order for idempotency key: %w", err)
	}
	return order, nil
}

func (s *CheckoutService) releaseKey(ctx context.Context, storeKey string) {
	if err := s.keys.Release(ctx, storeKey); err != nil {
		log.Printf("Warning: failed to release idempotency key %s: %v", storeKey, err)
	}
}

func (s *CheckoutService) placeOrder(ctx context.Context, userID string, address models.ShippingAddress, key *string) (*models.Order, error) {
	// The held view may predate catalog changes; products are always re-read here.
	view, ok := s.carts.CurrentView(userID)
	var err error
	if ok {
		view, err = s.carts.Revalidate(ctx, view)
	} else {
		view, err = s.carts.Refresh(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	entries := view.AvailableEntries()
	if len(entries) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]models.OrderItem, 0, len(entries))
	total := decimal.Zero
	for _, entry := range entries {
		if entry.Product.Stock < entry.Line.Quantity {
			return nil, fmt.Errorf("%w for product %s (requested: %d, available: %d)",
				ErrInsufficientStock, entry.Product.Title, entry.Line.Quantity, entry.Product.Stock)
		}
		item := models.OrderItem{
			ProductID: entry.Product.ID,
			Title:     entry.Product.Title,
			UnitPrice: entry.Product.Price,
			Quantity:  entry.Line.Quantity,
		}
		items = append(items, item)
		total = total.Add(item.Subtotal())
	}

	order := &models.Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		IdempotencyKey:  key,
		Items:           items,
		Total:           total.Round(2),
		Status:          models.OrderStatusPending,
		ShippingAddress: address,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		if errors.Is(err, repositories.ErrDuplicateOrder) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

// afterPlaced clears the cart and announces the order. Neither step can fail the
// checkout; the order already exists.
func (s *CheckoutService) afterPlaced(ctx context.Context, order *models.Order) {
	if _, err := s.carts.ClearCart(ctx, order.UserID); err != nil {
		log.Printf("Warning: order %s created but clearing cart for user %s failed: %v", order.ID, order.UserID, err)
	}
	s.publish(EventOrderCreated, order)
}

// UpdateStatus moves an order to newStatus. Order managers may apply any legal
// transition; owners may only cancel.
func (s *CheckoutService) UpdateStatus(ctx context.Context, principal models.Principal, orderID string, newStatus models.OrderStatus) (*models.Order, error) {
	if !principal.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !newStatus.Valid() {
		return nil, validationError("unknown order status %q", newStatus)
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	manager := s.caps.HasCapability(principal, CapabilityManageOrders)
	if !manager && order.UserID != principal.UserID {
		return nil, fmt.Errorf("order with ID %s: %w", orderID, ErrOrderNotFound)
	}

	from := order.Status
	if err := order.TransitionTo(newStatus); err != nil {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, newStatus)
	}
	if !manager && newStatus != models.OrderStatusCancelled {
		return nil, ErrForbidden
	}

	if err := s.orderRepo.UpdateStatus(ctx, order.ID, from, newStatus); err != nil {
		if errors.Is(err, repositories.ErrOrderStatusConflict) {
			return nil, fmt.Errorf("%w: order %s is no longer %s", ErrInvalidTransition, order.ID, from)
		}
		return nil, fmt.Errorf("failed to update status of order %s: %w", order.ID, err)
	}
	order.UpdatedAt = time.Now()

	s.publish(EventOrderStatusChanged, order)
	return order, nil
}

// GetOrder returns one order visible to principal. Orders belonging to someone
// else read as not found unless the principal manages orders.
func (s *CheckoutService) GetOrder(ctx context.Context, principal models.Principal, orderID string) (*models.Order, error) {
	if !principal.Authenticated() {
		return nil, ErrUnauthenticated
	}
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != principal.UserID && !s.caps.HasCapability(principal, CapabilityManageOrders) {
		return nil, fmt.Errorf("order with ID %s: %w", orderID, ErrOrderNotFound)
	}
	return order, nil
}

// ListOrders returns the principal's own orders, newest first, or every order when
// all is set and the principal manages orders.
func (s *CheckoutService) ListOrders(ctx context.Context, principal models.Principal, all bool) ([]models.Order, error) {
	if !principal.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if all {
		if !s.caps.HasCapability(principal, CapabilityManageOrders) {
			return nil, ErrForbidden
		}
		return s.orderRepo.ListAll(ctx)
	}
	return s.orderRepo.ListByUser(ctx, principal.UserID)
}

func (s *CheckoutService) publish(routingKey string, order *models.Order) {
	if s.publisher == nil {
		log.Printf("Event publisher is not initialized. Skipping %s for order %s.", routingKey, order.ID)
		return
	}

	body, err := json.Marshal(orderEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Total:      order.Total,
		Items:      order.Items,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("Failed to marshal %s event for order %s: %v", routingKey, order.ID, err)
		return
	}
	if err := s.publisher.Publish(OrderEventsExchange, routingKey, body); err != nil {
		log.Printf("Warning: failed to publish %s event for order %s: %v", routingKey, order.ID, err)
		return
	}
	log.Printf("Published %s event for order %s", routingKey, order.ID)
}

// orderEvent is the body of every order.* message.
type orderEvent struct {
	OrderID    string             `json:"order_id"`
	UserID     string             `json:"user_id"`
	Status     models.OrderStatus `json:"status"`
	Total      decimal.Decimal    `json:"total"`
	Items      []models.OrderItem `json:"items"`
	OccurredAt time.Time          `json:"occurred_at"`
}
