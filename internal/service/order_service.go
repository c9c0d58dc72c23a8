package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// DefaultIdempotencyTTL is how long a placed order answers repeats of its
// Idempotency-Key.
const DefaultIdempotencyTTL = 24 * time.Hour

// maxLineQuantity bounds one order line to the range of the quantity column.
const maxLineQuantity = math.MaxInt32

// IdempotencyStore remembers which order a client request key produced
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (claimed bool, orderID int64, err error)
	CompleteIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// OrderService handles order business logic
type OrderService struct {
	store          *store.Store
	dispatcher     EventDispatcher
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewOrderService creates a new order service. dispatcher and idempotency
// may be nil.
func NewOrderService(
	store *store.Store,
	dispatcher EventDispatcher,
	idempotency IdempotencyStore,
) *OrderService {
	if dispatcher == nil {
		dispatcher = discardDispatcher{}
	}
	return &OrderService{
		store:          store,
		dispatcher:     dispatcher,
		idempotency:    idempotency,
		idempotencyTTL: DefaultIdempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	Customer *int64             `json:"customer"`
	Notes    string             `json:"notes"`
	Items    []OrderItemRequest `json:"items"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	Product  int64 `json:"product"`
	Quantity int   `json:"quantity"`
}

// UpdateStatusRequest is the payload for changing an order's status
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// CreateOrder places an order for customerID. The order, its items and the
// stock decrements commit together or not at all; notifications go out only
// after the commit. A repeated idempotencyKey returns the order the first
// request created.
func (s *OrderService) CreateOrder(ctx context.Context, customerID int64, req *CreateOrderRequest, idempotencyKey string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := validateOrderRequest(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	if idempotencyKey == "" || s.idempotency == nil {
		return s.placeOrder(ctx, customerID, req)
	}

	key := fmt.Sprintf("%d:%s", customerID, idempotencyKey)
	claimed, existingID, err := s.idempotency.ClaimIdempotencyKey(ctx, key, s.idempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if !claimed {
		if existingID == 0 {
			return nil, fmt.Errorf("order request %q still in progress: %w", idempotencyKey, models.ErrConflict)
		}
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", idempotencyKey),
			zap.Int64("order_id", existingID))
		return s.GetOrder(ctx, customerID, existingID)
	}

	order, err := s.placeOrder(ctx, customerID, req)
	if err != nil {
		if relErr := s.idempotency.ReleaseIdempotencyKey(ctx, key); relErr != nil {
			s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
		}
		return nil, err
	}

	if err := s.idempotency.CompleteIdempotencyKey(ctx, key, order.ID, s.idempotencyTTL); err != nil {
		s.logger.Warn("Failed to record idempotency key", zap.String("key", key), zap.Error(err))
	}
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, customerID int64, req *CreateOrderRequest) (*models.Order, error) {
	timer := prometheus.NewTimer(util.OrderPlacementLatency)
	defer timer.ObserveDuration()

	var (
		order    *models.Order
		customer *models.Customer
	)
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		customer, err = tx.GetCustomerByID(ctx, customerID)
		if err != nil {
			return err
		}

		requested, ids := aggregateQuantities(req.Items)

		// rows are locked in id order so concurrent orders cannot deadlock
		locked, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		products := make(map[int64]*models.Product, len(locked))
		for i := range locked {
			products[locked[i].ID] = &locked[i]
		}

		if err := validateStock(req.Items, products, requested); err != nil {
			return err
		}

		order = &models.Order{
			CustomerID:  customerID,
			Status:      models.OrderStatusPending,
			TotalAmount: decimal.Zero,
			Notes:       req.Notes,
		}
		items := make([]models.OrderItem, 0, len(req.Items))
		for _, line := range req.Items {
			p := products[line.Product]
			lineTotal := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			order.TotalAmount = order.TotalAmount.Add(lineTotal)
			items = append(items, models.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    line.Quantity,
				UnitPrice:   p.Price,
				TotalPrice:  lineTotal,
			})
		}

		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
			if err := tx.CreateOrderItem(ctx, &items[i]); err != nil {
				return err
			}
		}
		order.Items = items

		for _, id := range ids {
			ok, err := tx.DecrementStock(ctx, id, requested[id])
			if err != nil {
				return err
			}
			if !ok {
				util.StockConflictsTotal.Inc()
				p := products[id]
				return models.NewValidationError("items", "Insufficient stock for %s. Available: %d", p.Name, p.StockQuantity)
			}
		}
		return nil
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	order.CustomerName = customer.DisplayName()
	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", customerID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)))

	s.dispatcher.Dispatch(ctx, newOrderEvent(models.EventTypeOrderCreated, order, customer))
	return order, nil
}

// UpdateStatus moves one of the customer's orders to a new status. Any
// known status may follow any other; shipped and delivered notify the
// customer by SMS.
func (s *OrderService) UpdateStatus(ctx context.Context, customerID, orderID int64, status string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	order, err := s.ownedOrder(ctx, s.store, customerID, orderID)
	if err != nil {
		return nil, err
	}

	next := models.OrderStatus(status)
	if !next.Valid() {
		return nil, models.NewValidationError("status", "Invalid status")
	}

	if err := s.store.UpdateOrderStatus(ctx, order.ID, next); err != nil {
		return nil, err
	}
	previous := order.Status
	order.Status = next

	customer, err := s.store.GetCustomerByID(ctx, order.CustomerID)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, order, customer); err != nil {
		return nil, err
	}

	util.OrderStatusUpdatesTotal.WithLabelValues(string(next)).Inc()
	s.logger.Info("Order status updated",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(next)))

	if next.NotifiesCustomer() {
		s.dispatcher.Dispatch(ctx, newOrderEvent(models.EventTypeOrderStatusChanged, order, customer))
	}
	return order, nil
}

// GetOrder returns one of the customer's orders with its items
func (s *OrderService) GetOrder(ctx context.Context, customerID, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.ownedOrder(ctx, s.store, customerID, orderID)
	if err != nil {
		return nil, err
	}
	customer, err := s.store.GetCustomerByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, order, customer); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns the customer's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, customerID int64) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	customer, err := s.store.GetCustomerByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrdersByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	for i := range orders {
		if err := s.attachItems(ctx, &orders[i], customer); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *OrderService) ownedOrder(ctx context.Context, st *store.Store, customerID, orderID int64) (*models.Order, error) {
	order, err := st.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	return order, nil
}

func (s *OrderService) attachItems(ctx context.Context, order *models.Order, customer *models.Customer) error {
	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	order.Items = items
	order.CustomerName = customer.DisplayName()
	return nil
}

func validateOrderRequest(req *CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return models.NewValidationError("items", "Order must contain at least one item")
	}
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return models.NewValidationError("items", "Ensure this value is greater than or equal to 1.")
		}
		if line.Quantity > maxLineQuantity {
			return models.NewValidationError("items", "Ensure this value is less than or equal to %d.", maxLineQuantity)
		}
	}
	return nil
}

// aggregateQuantities sums quantities per product and returns the product ids
// in ascending order.
func aggregateQuantities(lines []OrderItemRequest) (map[int64]int, []int64) {
	requested := make(map[int64]int, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, seen := requested[line.Product]; !seen {
			ids = append(ids, line.Product)
		}
		requested[line.Product] += line.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return requested, ids
}

// validateStock checks lines in request order and stops at the first
// violation.
func validateStock(lines []OrderItemRequest, products map[int64]*models.Product, requested map[int64]int) error {
	for _, line := range lines {
		p, ok := products[line.Product]
		if !ok {
			return fmt.Errorf("product %d: %w", line.Product, models.ErrNotFound)
		}
		if !p.IsActive {
			return models.NewValidationError("items", "Product %s is not available", p.Name)
		}
		if p.StockQuantity < requested[p.ID] {
			return models.NewValidationError("items", "Insufficient stock for %s. Available: %d", p.Name, p.StockQuantity)
		}
	}
	return nil
}

func failureReason(err error) string {
	if _, ok := models.ValidationDetails(err); ok {
		return "validation"
	}
	if errors.Is(err, models.ErrNotFound) {
		return "not_found"
	}
	return "db_error"
}
