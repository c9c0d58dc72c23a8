package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront/internal/service"
)

// listCategories returns root categories, or every category with ?all=true
func (h *Handler) listCategories(c *gin.Context) {
	var (
		nodes []service.CategoryNode
		err   error
	)
	if all, _ := strconv.ParseBool(c.Query("all")); all {
		nodes, err = h.categories.ListAll(c.Request.Context())
	} else {
		nodes, err = h.categories.ListRoots(c.Request.Context())
	}
	if err != nil {
		h.respondError(c, err, "Failed to list categories")
		return
	}

	c.JSON(http.StatusOK, nodes)
}

func (h *Handler) createCategory(c *gin.Context) {
	var req service.CategoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	node, err := h.categories.Create(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, "Failed to create category")
		return
	}

	c.JSON(http.StatusCreated, node)
}

func (h *Handler) getCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	node, err := h.categories.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to load category")
		return
	}

	c.JSON(http.StatusOK, node)
}

func (h *Handler) updateCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.CategoryUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	node, err := h.categories.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err, "Failed to update category")
		return
	}

	c.JSON(http.StatusOK, node)
}

func (h *Handler) deleteCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.categories.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "Failed to delete category")
		return
	}

	c.Status(http.StatusNoContent)
}

// categoryAveragePrice averages active product prices over a subtree
func (h *Handler) categoryAveragePrice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	avg, err := h.categories.AveragePrice(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to compute average price")
		return
	}

	c.JSON(http.StatusOK, avg)
}

// listProducts returns active products, optionally within ?category=<id>
func (h *Handler) listProducts(c *gin.Context) {
	var categoryID *int64
	if raw := c.Query("category"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			categoryID = &id
		}
	}

	products, err := h.products.List(c.Request.Context(), categoryID)
	if err != nil {
		h.respondError(c, err, "Failed to list products")
		return
	}

	c.JSON(http.StatusOK, products)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := h.products.Create(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, "Failed to create product")
		return
	}

	c.JSON(http.StatusCreated, product)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.products.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to load product")
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := h.products.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err, "Failed to update product")
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.products.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "Failed to delete product")
		return
	}

	c.Status(http.StatusNoContent)
}

// bulkUploadProducts accepts one product object or an array of them
func (h *Handler) bulkUploadProducts(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, err)
		return
	}

	payloads, err := splitPayloads(body)
	if err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.products.BulkUpload(c.Request.Context(), payloads)
	if err != nil {
		h.respondError(c, err, "Failed to upload products")
		return
	}

	c.JSON(http.StatusOK, result)
}

func splitPayloads(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var payloads []json.RawMessage
		if err := json.Unmarshal(trimmed, &payloads); err != nil {
			return nil, err
		}
		return payloads, nil
	}

	var single json.RawMessage
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	return []json.RawMessage{single}, nil
}
