package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) createProduct(sku, price string, stock int) int64 {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/products", "", gin.H{
		"name": "Product " + sku, "price": price, "category_path": "Shop", "sku": sku, "stock_quantity": stock,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return int64(decode(s.t, w)["id"].(float64))
}

func TestOrderEndpoints(t *testing.T) {
	s := newTestServer(t)
	ada := s.login("ada")
	bo := s.login("bo")
	productID := s.createProduct("MUG", "12.50", 3)

	w := s.do(http.MethodPost, "/api/v1/orders", "", gin.H{"items": []gin.H{{"product": productID, "quantity": 1}}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/orders", ada.Tokens.Access, gin.H{
		"notes": "gift wrap",
		"items": []gin.H{{"product": productID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode(t, w)
	assert.Equal(t, "25", order["total_amount"])
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, "Ada Lovelace", order["customer_name"])
	orderID := int64(order["id"].(float64))

	w = s.do(http.MethodPost, "/api/v1/orders", ada.Tokens.Access, gin.H{
		"items": []gin.H{{"product": productID, "quantity": 5}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Insufficient stock for Product MUG. Available: 1", decode(t, w)["error"])

	w = s.do(http.MethodPost, "/api/v1/orders", ada.Tokens.Access, gin.H{
		"customer": bo.Customer.ID,
		"items":    []gin.H{{"product": productID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/orders", ada.Tokens.Access, gin.H{
		"items": []gin.H{{"product": 999, "quantity": 1}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/v1/orders", ada.Tokens.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gift wrap")

	orderPath := fmt.Sprintf("/api/v1/orders/%d", orderID)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, orderPath, ada.Tokens.Access, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, orderPath, bo.Tokens.Access, nil).Code)

	w = s.do(http.MethodPatch, orderPath+"/status", ada.Tokens.Access, gin.H{"status": "lost"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid status", decode(t, w)["error"])

	w = s.do(http.MethodPatch, orderPath+"/status", ada.Tokens.Access, gin.H{"status": "shipped"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shipped", decode(t, w)["status"])

	w = s.do(http.MethodPatch, orderPath+"/status", bo.Tokens.Access, gin.H{"status": "delivered"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
