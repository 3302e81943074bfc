package repositories

import "errors"

var (
	ErrProductNotFound       = errors.New("product not found")
	ErrCartLineNotFound      = errors.New("cart line not found")
	ErrDuplicateCartLine     = errors.New("cart line already exists for user and product")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("order already exists for idempotency key")
	ErrOrderStatusConflict   = errors.New("order status changed concurrently")
	ErrDuplicateWishlistItem = errors.New("wishlist item already exists for user and product")
	ErrUserNotFound          = errors.New("user not found")
	ErrDuplicateUser         = errors.New("username or email already registered")
)
