package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/models"
	"storefront/internal/service"
)

// createOrder places an order for the caller's customer profile
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	customer, ok := h.callerCustomer(c)
	if !ok {
		return
	}
	if req.Customer != nil && *req.Customer != customer.ID {
		h.respondError(c, models.NewValidationError("customer", "You can only place orders for your own customer profile."), "")
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), customer.ID, &req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		h.respondError(c, err, "Failed to create order")
		return
	}

	c.JSON(http.StatusCreated, order)
}

// listOrders returns the caller's orders, newest first
func (h *Handler) listOrders(c *gin.Context) {
	customer, ok := h.callerCustomer(c)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), customer.ID)
	if err != nil {
		h.respondError(c, err, "Failed to list orders")
		return
	}

	c.JSON(http.StatusOK, orders)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	customer, ok := h.callerCustomer(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), customer.ID, orderID)
	if err != nil {
		h.respondError(c, err, "Failed to load order")
		return
	}

	c.JSON(http.StatusOK, order)
}

// updateOrderStatus moves one of the caller's orders to a new status
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	customer, ok := h.callerCustomer(c)
	if !ok {
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), customer.ID, orderID, req.Status)
	if err != nil {
		h.respondError(c, err, "Failed to update order status")
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) callerCustomer(c *gin.Context) (*models.Customer, bool) {
	customer, err := h.customers.EnsureForUser(c.Request.Context(), c.GetInt64(ctxUserID))
	if err != nil {
		h.respondError(c, err, "Failed to load customer")
		return nil, false
	}
	return customer, true
}
