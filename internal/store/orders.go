package store

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

const orderColumns = `id, customer_id, status, total_amount, order_date, notes, updated_at`

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	order.OrderDate = now()
	order.UpdatedAt = order.OrderDate
	query := `
		INSERT INTO orders (customer_id, status, total_amount, order_date, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	err := s.get(ctx, &order.ID, query,
		order.CustomerID, order.Status, order.TotalAmount, order.OrderDate, order.Notes, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.get(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// ListOrdersByCustomer retrieves orders for a customer, newest first
func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.q.SelectContext(ctx, &orders, s.rebind(
		"SELECT "+orderColumns+" FROM orders WHERE customer_id = ? ORDER BY order_date DESC, id DESC"),
		customerID)
	return orders, err
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	res, err := s.exec(ctx,
		"UPDATE orders SET status = ?, updated_at = ? WHERE id = ?",
		status, now(), orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return expectRow(res, "order", orderID)
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, total_price)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	err := s.get(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.q.SelectContext(ctx, &items, s.rebind(
		"SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price FROM order_items WHERE order_id = ? ORDER BY id"),
		orderID)
	return items, err
}
