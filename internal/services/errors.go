package services

import (
	"errors"
	"fmt"

	"storefront/internal/repositories"
)

// Error taxonomy surfaced to the HTTP layer. Callers match with errors.Is.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrCartOperationFailed = errors.New("cart operation failed")
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrCheckoutInProgress  = errors.New("checkout already in progress for idempotency key")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAlreadyRegistered   = errors.New("username or email already registered")

	// Re-exported so handlers only depend on this package.
	ErrProductNotFound  = repositories.ErrProductNotFound
	ErrCartLineNotFound = repositories.ErrCartLineNotFound
	ErrOrderNotFound    = repositories.ErrOrderNotFound
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func cartFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCartOperationFailed, op, err)
}
