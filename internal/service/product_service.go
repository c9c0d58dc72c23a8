package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/category"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

const (
	maxProductNameLength = 255
	maxSKULength         = 50
	maxPriceDigits       = 10
	priceDecimalPlaces   = 2
)

// ProductService handles catalog products
type ProductService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(store *store.Store) *ProductService {
	return &ProductService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// ProductInput is the create or partial-update payload for a product. Nil
// fields are left unchanged on update.
type ProductInput struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price"`
	Category      *int64           `json:"category"`
	CategoryPath  *string          `json:"category_path"`
	SKU           *string          `json:"sku"`
	StockQuantity *int             `json:"stock_quantity"`
	IsActive      *bool            `json:"is_active"`
}

// BulkUploadError describes one rejected payload of a bulk upload
type BulkUploadError struct {
	ProductData json.RawMessage     `json:"product_data"`
	Errors      map[string][]string `json:"errors"`
}

// BulkUploadResult summarises a bulk upload
type BulkUploadResult struct {
	Created      []models.Product  `json:"created"`
	Errors       []BulkUploadError `json:"errors"`
	TotalCreated int               `json:"total_created"`
	TotalErrors  int               `json:"total_errors"`
}

// List returns active products, newest first. A category filter includes
// every descendant category; an unknown category id is ignored.
func (s *ProductService) List(ctx context.Context, categoryID *int64) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.List")
	defer span.End()

	tree, err := loadTree(ctx, s.store)
	if err != nil {
		return nil, err
	}

	var ids []int64
	if categoryID != nil {
		if _, ok := tree.Get(*categoryID); ok {
			ids, err = tree.SubtreeIDs(*categoryID)
			if err != nil {
				return nil, err
			}
		}
	}

	products, err := s.store.ListActiveProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	for i := range products {
		decorateProduct(tree, &products[i])
	}
	return products, nil
}

// Get returns an active product
func (s *ProductService) Get(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Get")
	defer span.End()

	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}

	tree, err := loadTree(ctx, s.store)
	if err != nil {
		return nil, err
	}
	decorateProduct(tree, p)
	return p, nil
}

// Create validates and stores a product. When only a category path is given
// the categories along it are found or created.
func (s *ProductService) Create(ctx context.Context, in *ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Create")
	defer span.End()

	p := &models.Product{IsActive: true}
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := applyProductInput(ctx, tx, p, in, true); err != nil {
			return err
		}
		if err := tx.CreateProduct(ctx, p); err != nil {
			return err
		}
		tree, err := loadTree(ctx, tx)
		if err != nil {
			return err
		}
		decorateProduct(tree, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product created",
		zap.Int64("product_id", p.ID),
		zap.String("sku", p.SKU),
		zap.String("category_path", p.CategoryPath))
	return p, nil
}

// Update applies a partial update to a product
func (s *ProductService) Update(ctx context.Context, id int64, in *ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Update")
	defer span.End()

	var p *models.Product
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		p, err = tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if err := applyProductInput(ctx, tx, p, in, false); err != nil {
			return err
		}
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		tree, err := loadTree(ctx, tx)
		if err != nil {
			return err
		}
		decorateProduct(tree, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a product that has never been ordered
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "ProductService.Delete")
	defer span.End()

	return s.store.WithTx(ctx, func(tx *store.Store) error {
		if _, err := tx.GetProduct(ctx, id); err != nil {
			return err
		}
		ordered, err := tx.CountOrderedProducts(ctx, []int64{id}, false)
		if err != nil {
			return fmt.Errorf("failed to check order history: %w", err)
		}
		if ordered > 0 {
			return models.NewValidationError("", "Cannot delete a product that has been ordered; deactivate it instead.")
		}
		return tx.DeleteProduct(ctx, id)
	})
}

// BulkUpload creates each payload independently. Invalid payloads are
// reported with their validation errors and do not stop the others.
func (s *ProductService) BulkUpload(ctx context.Context, payloads []json.RawMessage) (*BulkUploadResult, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.BulkUpload")
	defer span.End()

	result := &BulkUploadResult{
		Created: []models.Product{},
		Errors:  []BulkUploadError{},
	}

	for _, raw := range payloads {
		p, err := s.createFromJSON(ctx, raw)
		if err != nil {
			details, ok := models.ValidationDetails(err)
			if !ok {
				return nil, err
			}
			util.BulkUploadProductsTotal.WithLabelValues("failed").Inc()
			result.Errors = append(result.Errors, BulkUploadError{ProductData: raw, Errors: details})
			continue
		}
		util.BulkUploadProductsTotal.WithLabelValues("created").Inc()
		result.Created = append(result.Created, *p)
	}

	result.TotalCreated = len(result.Created)
	result.TotalErrors = len(result.Errors)

	s.logger.Info("Bulk upload finished",
		zap.Int("created", result.TotalCreated),
		zap.Int("errors", result.TotalErrors))
	return result, nil
}

func (s *ProductService) createFromJSON(ctx context.Context, raw json.RawMessage) (*models.Product, error) {
	var in ProductInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, models.NewValidationError("", "Invalid data. %s", err.Error())
	}
	return s.Create(ctx, &in)
}

// applyProductInput merges in into p and validates the result. Categories
// named by a path are created through tx.
func applyProductInput(ctx context.Context, tx *store.Store, p *models.Product, in *ProductInput, creating bool) error {
	var verrs models.ValidationErrors

	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Name != nil || creating {
		switch {
		case in.Name == nil:
			verrs.Add("name", "This field is required.")
		case p.Name == "":
			verrs.Add("name", "This field may not be blank.")
		case len([]rune(p.Name)) > maxProductNameLength:
			verrs.Add("name", "Ensure this field has no more than %d characters.", maxProductNameLength)
		}
	}

	if in.Description != nil {
		p.Description = *in.Description
	}

	if in.SKU != nil {
		p.SKU = strings.TrimSpace(*in.SKU)
	}
	if in.SKU != nil || creating {
		switch {
		case in.SKU == nil:
			verrs.Add("sku", "This field is required.")
		case p.SKU == "":
			verrs.Add("sku", "This field may not be blank.")
		case len([]rune(p.SKU)) > maxSKULength:
			verrs.Add("sku", "Ensure this field has no more than %d characters.", maxSKULength)
		default:
			taken, err := tx.SKUExists(ctx, p.SKU, p.ID)
			if err != nil {
				return fmt.Errorf("failed to check sku: %w", err)
			}
			if taken {
				verrs.Add("sku", "product with this sku already exists.")
			}
		}
	}

	if in.Price != nil {
		p.Price = *in.Price
		validatePrice(&verrs, p.Price)
	} else if creating {
		verrs.Add("price", "This field is required.")
	}

	if in.StockQuantity != nil {
		p.StockQuantity = *in.StockQuantity
		if p.StockQuantity < 0 {
			verrs.Add("stock_quantity", "Ensure this value is greater than or equal to 0.")
		}
	}

	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}

	switch {
	case in.Category != nil:
		if _, err := tx.GetCategory(ctx, *in.Category); err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				return err
			}
			verrs.Add("category", "Invalid pk \"%d\" - object does not exist.", *in.Category)
		} else {
			p.CategoryID = *in.Category
		}
	case in.CategoryPath != nil:
		if _, err := category.ParsePath(*in.CategoryPath); err != nil {
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				return err
			}
			verrs = append(verrs, verr)
		}
	case creating:
		verrs.Add("category", "This field is required.")
	}

	if err := verrs.Err(); err != nil {
		return err
	}

	// Categories are only materialised once the rest of the payload is valid.
	if in.Category == nil && in.CategoryPath != nil {
		leaf, err := category.ResolvePath(ctx, tx, *in.CategoryPath)
		if err != nil {
			return err
		}
		p.CategoryID = leaf.ID
	}
	return nil
}

func validatePrice(verrs *models.ValidationErrors, price decimal.Decimal) {
	if price.IsNegative() {
		verrs.Add("price", "Ensure this value is greater than or equal to 0.")
		return
	}
	if !price.Equal(price.Round(priceDecimalPlaces)) {
		verrs.Add("price", "Ensure that there are no more than %d decimal places.", priceDecimalPlaces)
		return
	}
	if intDigits := len(price.Truncate(0).String()); intDigits > maxPriceDigits-priceDecimalPlaces {
		verrs.Add("price", "Ensure that there are no more than %d digits in total.", maxPriceDigits)
	}
}

func decorateProduct(tree *category.Tree, p *models.Product) {
	if c, ok := tree.Get(p.CategoryID); ok {
		p.CategoryName = c.Name
	}
	if path, err := tree.Path(p.CategoryID); err == nil {
		p.CategoryPath = path
	}
}
