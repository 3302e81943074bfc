package handlers

import (
	"fmt"
	"log"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HeaderIdempotencyKey lets clients retry POST /orders without placing a second order.
const HeaderIdempotencyKey = "Idempotency-Key"

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.CheckoutService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.CheckoutService) *OrderHandler {
	return &OrderHandler{
		service: service,
	}
}

// RegisterRoutes registers the order routes behind guards, normally the authentication middleware.
func (h *OrderHandler) RegisterRoutes(router fiber.Router, guards ...fiber.Handler) {
	orderRoutes := router.Group("/orders", guards...)
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Patch("/:id/status", h.HandleUpdateOrderStatus)
}

// HandleGetOrders lists the caller's orders, or every order with ?all=true for order managers.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	orders, err := h.service.ListOrders(c.UserContext(), middleware.PrincipalFrom(c), c.QueryBool("all"))
	if err != nil {
		return respondError(c, "Could not retrieve orders", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return c.JSON(orders)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	orderID := c.Params("id")
	order, err := h.service.GetOrder(c.UserContext(), middleware.PrincipalFrom(c), orderID)
	if err != nil {
		return respondError(c, fmt.Sprintf("Could not retrieve order %s", orderID), err)
	}
	return c.JSON(order)
}

// HandleCreateOrder checks out the caller's cart.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req services.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	req.IdempotencyKey = c.Get(HeaderIdempotencyKey)

	userID := middleware.PrincipalFrom(c).UserID
	order, err := h.service.CreateOrder(c.UserContext(), userID, req)
	if err != nil {
		log.Printf("Error creating order for user %s: %v", userID, err)
		return respondError(c, "Could not create order", err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// UpdateStatusRequest is the body of PATCH /orders/:id/status.
type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

// HandleUpdateOrderStatus moves an order through its lifecycle.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if req.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Status is required for order status update.",
		})
	}

	order, err := h.service.UpdateStatus(c.UserContext(), middleware.PrincipalFrom(c), orderID, req.Status)
	if err != nil {
		log.Printf("Error updating order status for order %s: %v", orderID, err)
		return respondError(c, "Could not update order status", err)
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Order %s status updated successfully to %s", orderID, order.Status),
		"order":   order,
	})
}
