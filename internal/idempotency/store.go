// Package idempotency remembers which checkout requests have already produced an order.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Lookup when no reservation exists for a key.
var ErrNotFound = errors.New("idempotency key not found")

// Pending is the value a key holds between Reserve and Complete.
const Pending = "pending"

// Store tracks idempotency keys through reserve -> complete (or release).
type Store interface {
	// Reserve claims key. It returns false if the key is already held.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Complete records the order produced under key.
	Complete(ctx context.Context, key, orderID string, ttl time.Duration) error
	// Lookup returns the stored value: an order id, or Pending.
	Lookup(ctx context.Context, key string) (string, error)
	// Release drops a reservation whose checkout failed.
	Release(ctx context.Context, key string) error
}

// CheckoutKey namespaces a client-supplied key by user.
func CheckoutKey(userID, key string) string {
	return fmt.Sprintf("checkout:%s:%s", userID, key)
}
