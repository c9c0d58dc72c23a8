package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/store/storetest"
)

func TestCreateOrderTotalsAndSnapshotsPrices(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	dispatcher := &recordingDispatcher{}
	svc := NewOrderService(st, dispatcher, nil)

	customer := seedCustomer(t, st, "ada@example.com", "+254700000001")
	cat := seedCategory(t, st, "Bakery", nil)
	bread := seedProduct(t, st, cat, "BREAD", "4.25", 10, true)
	butter := seedProduct(t, st, cat, "BUTTER", "1.10", 10, true)

	order, err := svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Notes: "ring twice",
		Items: []OrderItemRequest{{Product: bread.ID, Quantity: 2}, {Product: butter.ID, Quantity: 3}},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "11.80", order.TotalAmount.StringFixed(2))
	require.Len(t, order.Items, 2)
	sum := decimal.Zero
	for _, item := range order.Items {
		assert.True(t, item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Equal(item.TotalPrice))
		sum = sum.Add(item.TotalPrice)
	}
	assert.True(t, sum.Equal(order.TotalAmount))

	bread.Price = decimal.RequireFromString("9.99")
	require.NoError(t, st.UpdateProduct(ctx, bread))

	got, err := svc.GetOrder(ctx, customer.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "11.80", got.TotalAmount.StringFixed(2))
	assert.Equal(t, "4.25", got.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "Test User", got.CustomerName)

	assert.Equal(t, []string{models.EventTypeOrderCreated}, dispatcher.types())
}

func TestCreateOrderDecrementsStockExactlyOnce(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	svc := NewOrderService(st, nil, nil)

	customer := seedCustomer(t, st, "ada@example.com", "")
	cat := seedCategory(t, st, "Bakery", nil)
	p := seedProduct(t, st, cat, "BREAD", "2.00", 10, true)

	_, err := svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: p.ID, Quantity: 4}},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 6, stockOf(t, st, p.ID))
}

func TestCreateOrderWithInsufficientStockChangesNothing(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	dispatcher := &recordingDispatcher{}
	svc := NewOrderService(st, dispatcher, nil)

	customer := seedCustomer(t, st, "ada@example.com", "")
	cat := seedCategory(t, st, "Bakery", nil)
	plenty := seedProduct(t, st, cat, "PLENTY", "1.00", 10, true)
	scarce := seedProduct(t, st, cat, "SCARCE", "1.00", 1, true)

	_, err := svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: plenty.ID, Quantity: 2}, {Product: scarce.ID, Quantity: 5}},
	}, "")
	require.Error(t, err)

	details, ok := models.ValidationDetails(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Insufficient stock for Product SCARCE. Available: 1"}, details["items"])

	assert.Equal(t, 10, stockOf(t, st, plenty.ID))
	assert.Equal(t, 1, stockOf(t, st, scarce.ID))

	orders, err := st.ListOrdersByCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, dispatcher.types())
}

func TestCreateOrderWithInactiveProductIsRejected(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	svc := NewOrderService(st, nil, nil)

	customer := seedCustomer(t, st, "ada@example.com", "")
	cat := seedCategory(t, st, "Bakery", nil)
	p := seedProduct(t, st, cat, "OLD", "1.00", 10, false)

	_, err := svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: p.ID, Quantity: 1}},
	}, "")
	details, ok := models.ValidationDetails(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Product Product OLD is not available"}, details["items"])

	orders, err := st.ListOrdersByCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderValidation(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	svc := NewOrderService(st, nil, nil)
	customer := seedCustomer(t, st, "ada@example.com", "")

	_, err := svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{}, "")
	details, ok := models.ValidationDetails(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Order must contain at least one item"}, details["items"])

	_, err = svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: 1, Quantity: 0}},
	}, "")
	_, ok = models.ValidationDetails(err)
	assert.True(t, ok)

	_, err = svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: 999, Quantity: 1}},
	}, "")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestCreateOrderAggregatesRepeatedProduct(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	svc := NewOrderService(st, nil, nil)

	customer := seedCustomer(t, st, "ada@example.com", "")
	cat := seedCategory(t, st, "Bakery", nil)
	p := seedProduct(t, st, cat, "BREAD", "1.00", 3, true)

	_, err := svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: p.ID, Quantity: 2}, {Product: p.ID, Quantity: 2}},
	}, "")
	details, ok := models.ValidationDetails(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Insufficient stock for Product BREAD. Available: 3"}, details["items"])
	assert.Equal(t, 3, stockOf(t, st, p.ID))
}

func TestConcurrentOrdersForLastUnit(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	svc := NewOrderService(st, nil, nil)

	first := seedCustomer(t, st, "ada@example.com", "")
	second := seedCustomer(t, st, "bo@example.com", "")
	cat := seedCategory(t, st, "Bakery", nil)
	p := seedProduct(t, st, cat, "LAST", "5.00", 1, true)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, c := range []*models.Customer{first, second} {
		wg.Add(1)
		go func(customerID int64) {
			defer wg.Done()
			_, err := svc.CreateOrder(ctx, customerID, &CreateOrderRequest{
				Items: []OrderItemRequest{{Product: p.ID, Quantity: 1}},
			}, "")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			_, isValidation := models.ValidationDetails(err)
			assert.True(t, isValidation, "unexpected error: %v", err)
		}(c.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, stockOf(t, st, p.ID))
}

func TestUpdateStatus(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	dispatcher := &recordingDispatcher{}
	svc := NewOrderService(st, dispatcher, nil)

	customer := seedCustomer(t, st, "ada@example.com", "+254700000001")
	cat := seedCategory(t, st, "Bakery", nil)
	p := seedProduct(t, st, cat, "BREAD", "1.00", 10, true)
	order, err := svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: p.ID, Quantity: 1}},
	}, "")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, customer.ID, order.ID, "teleported")
	details, ok := models.ValidationDetails(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Invalid status"}, details["status"])
	got, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)

	updated, err := svc.UpdateStatus(ctx, customer.ID, order.ID, "confirmed")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, updated.Status)
	assert.Len(t, updated.Items, 1)

	// any known status may follow any other
	_, err = svc.UpdateStatus(ctx, customer.ID, order.ID, "delivered")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, customer.ID, order.ID, "pending")
	require.NoError(t, err)

	assert.Equal(t, []string{models.EventTypeOrderCreated, models.EventTypeOrderStatusChanged}, dispatcher.types())
}

func TestUpdateStatusOfAnotherCustomersOrder(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	svc := NewOrderService(st, nil, nil)

	owner := seedCustomer(t, st, "ada@example.com", "")
	other := seedCustomer(t, st, "bo@example.com", "")
	cat := seedCategory(t, st, "Bakery", nil)
	p := seedProduct(t, st, cat, "BREAD", "1.00", 10, true)
	order, err := svc.CreateOrder(ctx, owner.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: p.ID, Quantity: 1}},
	}, "")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, other.ID, order.ID, "shipped")
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = svc.GetOrder(ctx, other.ID, order.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

type syncDispatcher struct {
	handler notify.Handler
}

func (d syncDispatcher) Dispatch(ctx context.Context, event *models.OrderEvent) {
	_ = d.handler.Handle(ctx, event)
}

type countingSMS struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingSMS) SendSMS(ctx context.Context, phone, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *countingSMS) SendAdminEmail(ctx context.Context, subject, body string) error {
	return c.err
}

func (c *countingSMS) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestStatusChangeSMSAttempts(t *testing.T) {
	for _, tt := range []struct {
		status string
		want   int
	}{
		{"pending", 0},
		{"confirmed", 0},
		{"shipped", 1},
		{"delivered", 1},
		{"cancelled", 0},
	} {
		t.Run(tt.status, func(t *testing.T) {
			st := storetest.New(t)
			ctx := context.Background()

			customer := seedCustomer(t, st, "ada@example.com", "+254700000001")
			cat := seedCategory(t, st, "Bakery", nil)
			p := seedProduct(t, st, cat, "BREAD", "1.00", 10, true)
			order, err := NewOrderService(st, nil, nil).CreateOrder(ctx, customer.ID, &CreateOrderRequest{
				Items: []OrderItemRequest{{Product: p.ID, Quantity: 1}},
			}, "")
			require.NoError(t, err)

			sms := &countingSMS{}
			svc := NewOrderService(st, syncDispatcher{handler: notify.NewNotifier(sms, sms)}, nil)
			_, err = svc.UpdateStatus(ctx, customer.ID, order.ID, tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sms.count())
		})
	}
}

func TestNotificationFailureDoesNotFailOrder(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	sms := &countingSMS{err: errors.New("gateway down")}
	svc := NewOrderService(st, syncDispatcher{handler: notify.NewNotifier(sms, sms)}, nil)

	customer := seedCustomer(t, st, "ada@example.com", "+254700000001")
	cat := seedCategory(t, st, "Bakery", nil)
	p := seedProduct(t, st, cat, "BREAD", "1.00", 10, true)

	order, err := svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: p.ID, Quantity: 1}},
	}, "")
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, 1, sms.count())
	assert.Equal(t, 9, stockOf(t, st, p.ID))
}

type memIdempotency struct {
	mu     sync.Mutex
	values map[string]int64
}

func (m *memIdempotency) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.values[key]; ok {
		return false, id, nil
	}
	m.values[key] = 0
	return true, 0, nil
}

func (m *memIdempotency) CompleteIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = orderID
	return nil
}

func (m *memIdempotency) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func TestIdempotencyKeyReplaysOrder(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	idem := &memIdempotency{values: map[string]int64{}}
	dispatcher := &recordingDispatcher{}
	svc := NewOrderService(st, dispatcher, idem)

	customer := seedCustomer(t, st, "ada@example.com", "")
	cat := seedCategory(t, st, "Bakery", nil)
	p := seedProduct(t, st, cat, "BREAD", "1.00", 10, true)
	req := &CreateOrderRequest{Items: []OrderItemRequest{{Product: p.ID, Quantity: 2}}}

	first, err := svc.CreateOrder(ctx, customer.ID, req, "key-1")
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, customer.ID, req, "key-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 8, stockOf(t, st, p.ID))
	assert.Len(t, dispatcher.types(), 1)

	// a failed placement frees the key for a retry
	_, err = svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: p.ID, Quantity: 100}},
	}, "key-2")
	require.Error(t, err)
	_, held := idem.values[fmt.Sprintf("%d:%s", customer.ID, "key-2")]
	assert.False(t, held)
}

func TestIdempotencyKeyInFlightConflicts(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	customer := seedCustomer(t, st, "ada@example.com", "")

	idem := &memIdempotency{values: map[string]int64{}}
	claimed, _, err := idem.ClaimIdempotencyKey(ctx, fmt.Sprintf("%d:%s", customer.ID, "key-1"), time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	svc := NewOrderService(st, nil, idem)
	_, err = svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: 1, Quantity: 1}},
	}, "key-1")
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestCreateOrderRejectsOversizedQuantities(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	svc := NewOrderService(st, nil, nil)

	customer := seedCustomer(t, st, "ada@example.com", "")
	cat := seedCategory(t, st, "Bakery", nil)
	p := seedProduct(t, st, cat, "BREAD", "1.00", 5, true)

	for _, items := range [][]OrderItemRequest{
		{{Product: p.ID, Quantity: math.MaxInt}, {Product: p.ID, Quantity: 2}},
		{{Product: p.ID, Quantity: math.MaxInt32 + 1}},
	} {
		_, err := svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{Items: items}, "")
		details, ok := models.ValidationDetails(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, []string{"Ensure this value is less than or equal to 2147483647."}, details["items"])
	}

	assert.Equal(t, 5, stockOf(t, st, p.ID))
	orders, err := st.ListOrdersByCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderRollsBackWhenDecrementFindsNoStock(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	dispatcher := &recordingDispatcher{}
	svc := NewOrderService(st, dispatcher, nil)

	customer := seedCustomer(t, st, "ada@example.com", "")
	cat := seedCategory(t, st, "Bakery", nil)
	p := seedProduct(t, st, cat, "BREAD", "1.00", 5, true)

	// sells the product out between the stock check and the decrement
	_, err := st.DB().ExecContext(ctx, `CREATE TRIGGER sell_out AFTER INSERT ON order_items
		BEGIN UPDATE products SET stock_quantity = 0 WHERE id = NEW.product_id; END`)
	require.NoError(t, err)

	_, err = svc.CreateOrder(ctx, customer.ID, &CreateOrderRequest{
		Items: []OrderItemRequest{{Product: p.ID, Quantity: 2}},
	}, "")
	details, ok := models.ValidationDetails(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, []string{"Insufficient stock for Product BREAD. Available: 5"}, details["items"])

	orders, err := st.ListOrdersByCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, 5, stockOf(t, st, p.ID))
	assert.Empty(t, dispatcher.types())
}
