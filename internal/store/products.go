package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

const productColumns = `id, name, description, price, category_id, sku, stock_quantity, is_active, created_at, updated_at`

// ListActiveProducts returns active products, newest first. A non-nil
// categoryIDs restricts the result to those categories.
func (s *Store) ListActiveProducts(ctx context.Context, categoryIDs []int64) ([]models.Product, error) {
	products := []models.Product{}
	if categoryIDs == nil {
		err := s.q.SelectContext(ctx, &products, s.rebind(
			"SELECT "+productColumns+" FROM products WHERE is_active = ? ORDER BY created_at DESC, id DESC"), true)
		return products, err
	}
	if len(categoryIDs) == 0 {
		return products, nil
	}
	err := s.selectIn(ctx, &products,
		"SELECT "+productColumns+" FROM products WHERE is_active = ? AND category_id IN (?) ORDER BY created_at DESC, id DESC",
		true, categoryIDs)
	return products, err
}

// GetProduct retrieves a product by ID regardless of its active flag.
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := s.get(ctx, &p, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &p, nil
}

// SKUExists reports whether another product already uses sku.
func (s *Store) SKUExists(ctx context.Context, sku string, excludeID int64) (bool, error) {
	var count int
	err := s.get(ctx, &count, "SELECT COUNT(*) FROM products WHERE sku = ? AND id <> ?", sku, excludeID)
	return count > 0, err
}

// CreateProduct inserts a product and fills in its ID and timestamps.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	err := s.get(ctx, &p.ID, `
		INSERT INTO products (name, description, price, category_id, sku, stock_quantity, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		p.Name, p.Description, p.Price, p.CategoryID, p.SKU, p.StockQuantity, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// UpdateProduct stores every editable column of a product.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	p.UpdatedAt = now()
	res, err := s.exec(ctx, `
		UPDATE products
		SET name = ?, description = ?, price = ?, category_id = ?, sku = ?,
		    stock_quantity = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Price, p.CategoryID, p.SKU, p.StockQuantity, p.IsActive, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return expectRow(res, "product", p.ID)
}

// DeleteProduct removes a product.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return expectRow(res, "product", id)
}

// DeleteProductsByCategories removes every product filed under the given
// categories.
func (s *Store) DeleteProductsByCategories(ctx context.Context, categoryIDs []int64) error {
	if len(categoryIDs) == 0 {
		return nil
	}
	_, err := s.execIn(ctx, "DELETE FROM products WHERE category_id IN (?)", categoryIDs)
	return err
}

// CountOrderedProducts counts order lines referencing products in the given
// categories (or the given product IDs when byCategory is false).
func (s *Store) CountOrderedProducts(ctx context.Context, ids []int64, byCategory bool) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := "SELECT COUNT(*) FROM order_items WHERE product_id IN (?)"
	if byCategory {
		query = "SELECT COUNT(*) FROM order_items oi JOIN products p ON p.id = oi.product_id WHERE p.category_id IN (?)"
	}
	query, args, err := sqlx.In(query, ids)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.get(ctx, &count, query, args...)
	return count, err
}

// ActivePrices returns the prices of active products in the given
// categories.
func (s *Store) ActivePrices(ctx context.Context, categoryIDs []int64) ([]decimal.Decimal, error) {
	prices := []decimal.Decimal{}
	if len(categoryIDs) == 0 {
		return prices, nil
	}
	err := s.selectIn(ctx, &prices,
		"SELECT price FROM products WHERE is_active = ? AND category_id IN (?)", true, categoryIDs)
	return prices, err
}

// LockProducts loads the given products ordered by ID, holding row locks
// until the surrounding transaction ends.
func (s *Store) LockProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	products := []models.Product{}
	if len(ids) == 0 {
		return products, nil
	}
	err := s.selectIn(ctx, &products,
		"SELECT "+productColumns+" FROM products WHERE id IN (?) ORDER BY id"+s.forUpdate(), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	return products, nil
}

// DecrementStock takes qty units off a product if enough remain. It reports
// false, leaving the row untouched, when stock is short.
func (s *Store) DecrementStock(ctx context.Context, id int64, qty int) (bool, error) {
	res, err := s.exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - ?, updated_at = ?
		WHERE id = ? AND stock_quantity >= ?`,
		qty, now(), id, qty)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
