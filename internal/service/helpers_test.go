package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
	"storefront/internal/store"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []*models.OrderEvent
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, event *models.OrderEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.EventType)
	}
	return out
}

func seedCustomer(t *testing.T, st *store.Store, email, phone string) *models.Customer {
	t.Helper()
	ctx := context.Background()

	user := &models.User{Email: email, Username: email, FirstName: "Test", LastName: "User", IsActive: true}
	require.NoError(t, st.CreateUser(ctx, user))
	customer, err := ensureCustomer(ctx, st, user.ID)
	require.NoError(t, err)

	if phone != "" {
		customer.Phone = phone
		require.NoError(t, st.UpdateCustomerProfile(ctx, customer))
	}
	return customer
}

func seedCategory(t *testing.T, st *store.Store, name string, parent *models.Category) *models.Category {
	t.Helper()
	c := &models.Category{Name: name}
	if parent != nil {
		id := parent.ID
		c.ParentID = &id
	}
	require.NoError(t, st.CreateCategory(context.Background(), c))
	return c
}

func seedProduct(t *testing.T, st *store.Store, cat *models.Category, sku, price string, stock int, active bool) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:          "Product " + sku,
		Price:         decimal.RequireFromString(price),
		CategoryID:    cat.ID,
		SKU:           sku,
		StockQuantity: stock,
		IsActive:      active,
	}
	require.NoError(t, st.CreateProduct(context.Background(), p))
	return p
}

func stockOf(t *testing.T, st *store.Store, id int64) int {
	t.Helper()
	p, err := st.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func ptr[T any](v T) *T {
	return &v
}
