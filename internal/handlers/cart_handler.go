package handlers

import (
	"storefront/internal/middleware"
	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// CartHandler exposes the signed-in user's cart. Every response carries the
// refreshed cart view.
type CartHandler struct {
	carts    *services.CartService
	validate *validator.Validate
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(carts *services.CartService) *CartHandler {
	return &CartHandler{
		carts:    carts,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the cart routes behind guards, normally the authentication middleware.
func (h *CartHandler) RegisterRoutes(router fiber.Router, guards ...fiber.Handler) {
	cartRoutes := router.Group("/cart", guards...)
	cartRoutes.Get("/", h.HandleGetCart)
	cartRoutes.Delete("/", h.HandleClearCart)
	cartRoutes.Post("/items", h.HandleAddItem)
	cartRoutes.Put("/items/:productId", h.HandleUpdateItem)
	cartRoutes.Delete("/items/:productId", h.HandleRemoveItem)
}

// AddItemRequest is the body of POST /cart/items.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// UpdateItemRequest is the body of PUT /cart/items/:productId.
type UpdateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// HandleGetCart returns the cart view. The last published view is served unless
// none exists yet or refresh=true is passed.
func (h *CartHandler) HandleGetCart(c *fiber.Ctx) error {
	userID := middleware.PrincipalFrom(c).UserID
	view, held := h.carts.CurrentView(userID)
	if !held || c.QueryBool("refresh") {
		var err error
		if view, err = h.carts.Refresh(c.UserContext(), userID); err != nil {
			return respondError(c, "Could not load cart", err)
		}
	}
	return c.JSON(view)
}

// HandleAddItem adds a product to the cart.
func (h *CartHandler) HandleAddItem(c *fiber.Ctx) error {
	var req AddItemRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	view, err := h.carts.AddItem(c.UserContext(), middleware.PrincipalFrom(c).UserID, req.ProductID, req.Quantity)
	if err != nil {
		return respondError(c, "Could not add item to cart", err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

// HandleUpdateItem replaces a line's quantity; zero or less removes it.
func (h *CartHandler) HandleUpdateItem(c *fiber.Ctx) error {
	var req UpdateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	view, err := h.carts.UpdateQuantity(c.UserContext(), middleware.PrincipalFrom(c).UserID, c.Params("productId"), *req.Quantity)
	if err != nil {
		return respondError(c, "Could not update cart item", err)
	}
	return c.JSON(view)
}

// HandleRemoveItem deletes one line.
func (h *CartHandler) HandleRemoveItem(c *fiber.Ctx) error {
	view, err := h.carts.RemoveItem(c.UserContext(), middleware.PrincipalFrom(c).UserID, c.Params("productId"))
	if err != nil {
		return respondError(c, "Could not remove cart item", err)
	}
	return c.JSON(view)
}

// HandleClearCart empties the cart.
func (h *CartHandler) HandleClearCart(c *fiber.Ctx) error {
	view, err := h.carts.ClearCart(c.UserContext(), middleware.PrincipalFrom(c).UserID)
	if err != nil {
		return respondError(c, "Could not clear cart", err)
	}
	return c.JSON(view)
}
