package handlers

import (
	"storefront/internal/middleware"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
)

// WishlistHandler exposes the signed-in user's saved products.
type WishlistHandler struct {
	service *services.WishlistService
}

// NewWishlistHandler creates a new WishlistHandler.
func NewWishlistHandler(service *services.WishlistService) *WishlistHandler {
	return &WishlistHandler{service: service}
}

// RegisterRoutes registers the wishlist routes behind guards, normally the authentication middleware.
func (h *WishlistHandler) RegisterRoutes(router fiber.Router, guards ...fiber.Handler) {
	wishlistRoutes := router.Group("/wishlist", guards...)
	wishlistRoutes.Get("/", h.HandleGetWishlist)
	wishlistRoutes.Post("/:productId/toggle", h.HandleToggle)
	wishlistRoutes.Delete("/:productId", h.HandleRemove)
}

// HandleGetWishlist lists saved products.
func (h *WishlistHandler) HandleGetWishlist(c *fiber.Ctx) error {
	entries, err := h.service.List(c.UserContext(), middleware.PrincipalFrom(c).UserID)
	if err != nil {
		return respondError(c, "Could not retrieve wishlist", err)
	}
	return c.JSON(entries)
}

// HandleToggle saves or unsaves a product.
func (h *WishlistHandler) HandleToggle(c *fiber.Ctx) error {
	added, entries, err := h.service.Toggle(c.UserContext(), middleware.PrincipalFrom(c).UserID, c.Params("productId"))
	if err != nil {
		return respondError(c, "Could not update wishlist", err)
	}
	return c.JSON(fiber.Map{
		"added": added,
		"items": entries,
	})
}

// HandleRemove unsaves a product.
func (h *WishlistHandler) HandleRemove(c *fiber.Ctx) error {
	entries, err := h.service.Remove(c.UserContext(), middleware.PrincipalFrom(c).UserID, c.Params("productId"))
	if err != nil {
		return respondError(c, "Could not update wishlist", err)
	}
	return c.JSON(entries)
}
