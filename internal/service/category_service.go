package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/category"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

const maxCategoryNameLength = 100

// CategoryService manages the category forest
type CategoryService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCategoryService creates a new category service
func NewCategoryService(store *store.Store) *CategoryService {
	return &CategoryService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CategoryNode is a category with its computed path and nested children.
type CategoryNode struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description string         `json:"description"`
	Parent      *int64         `json:"parent"`
	Path        string         `json:"path"`
	Children    []CategoryNode `json:"children"`
}

// CategoryInput is the payload for creating a category
type CategoryInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Parent      *int64 `json:"parent"`
}

// NullableID distinguishes an absent JSON field from an explicit null.
type NullableID struct {
	Set   bool
	Value *int64
}

// UnmarshalJSON records that the field was present.
func (n *NullableID) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	n.Value = &id
	return nil
}

// CategoryUpdate is the partial payload for updating a category
type CategoryUpdate struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Parent      NullableID `json:"parent"`
}

// AveragePrice is the price rollup over a category subtree.
type AveragePrice struct {
	Category     string          `json:"category"`
	CategoryPath string          `json:"category_path"`
	AveragePrice decimal.Decimal `json:"average_price"`
	ProductCount int             `json:"product_count"`
}

// ListRoots returns the root categories, newest first, with their subtrees
func (s *CategoryService) ListRoots(ctx context.Context) ([]CategoryNode, error) {
	ctx, span := util.StartSpan(ctx, "CategoryService.ListRoots")
	defer span.End()

	tree, err := loadTree(ctx, s.store)
	if err != nil {
		return nil, err
	}
	return buildNodes(tree, newestFirst(tree.Roots()))
}

// ListAll returns every category, newest first, each with its subtree
func (s *CategoryService) ListAll(ctx context.Context) ([]CategoryNode, error) {
	ctx, span := util.StartSpan(ctx, "CategoryService.ListAll")
	defer span.End()

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	tree := category.NewTree(categories)
	return buildNodes(tree, newestFirst(categories))
}

// Get returns one category with its subtree
func (s *CategoryService) Get(ctx context.Context, id int64) (*CategoryNode, error) {
	ctx, span := util.StartSpan(ctx, "CategoryService.Get")
	defer span.End()

	tree, err := loadTree(ctx, s.store)
	if err != nil {
		return nil, err
	}
	return nodeFor(tree, id)
}

// Create adds a category under an optional parent
func (s *CategoryService) Create(ctx context.Context, in *CategoryInput) (*CategoryNode, error) {
	ctx, span := util.StartSpan(ctx, "CategoryService.Create")
	defer span.End()

	var verrs models.ValidationErrors
	name := strings.TrimSpace(in.Name)
	validateCategoryName(&verrs, name)
	if err := verrs.Err(); err != nil {
		return nil, err
	}

	var node *CategoryNode
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if in.Parent != nil {
			if _, err := tx.GetCategory(ctx, *in.Parent); err != nil {
				return invalidReference("parent", *in.Parent, err)
			}
		}

		c := &models.Category{Name: name, Description: in.Description, ParentID: in.Parent}
		if err := tx.CreateCategory(ctx, c); err != nil {
			return err
		}

		tree, err := loadTree(ctx, tx)
		if err != nil {
			return err
		}
		node, err = nodeFor(tree, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Category created", zap.Int64("category_id", node.ID), zap.String("path", node.Path))
	return node, nil
}

// Update renames, describes or re-parents a category. Moving a category
// under itself or one of its descendants is rejected.
func (s *CategoryService) Update(ctx context.Context, id int64, in *CategoryUpdate) (*CategoryNode, error) {
	ctx, span := util.StartSpan(ctx, "CategoryService.Update")
	defer span.End()

	var node *CategoryNode
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		tree, err := loadTree(ctx, tx)
		if err != nil {
			return err
		}
		current, ok := tree.Get(id)
		if !ok {
			return fmt.Errorf("category %d: %w", id, models.ErrNotFound)
		}

		var verrs models.ValidationErrors
		if in.Name != nil {
			current.Name = strings.TrimSpace(*in.Name)
			validateCategoryName(&verrs, current.Name)
		}
		if in.Description != nil {
			current.Description = *in.Description
		}
		if in.Parent.Set {
			if err := validateParent(&verrs, tree, id, in.Parent.Value); err != nil {
				return err
			}
			current.ParentID = in.Parent.Value
		}
		if err := verrs.Err(); err != nil {
			return err
		}

		if err := tx.UpdateCategory(ctx, &current); err != nil {
			return err
		}

		tree, err = loadTree(ctx, tx)
		if err != nil {
			return err
		}
		node, err = nodeFor(tree, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// Delete removes a category, its descendants and every product filed under
// them. Categories whose products appear on orders cannot be deleted.
func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "CategoryService.Delete")
	defer span.End()

	return s.store.WithTx(ctx, func(tx *store.Store) error {
		tree, err := loadTree(ctx, tx)
		if err != nil {
			return err
		}
		ids, err := tree.SubtreeIDs(id)
		if err != nil {
			return err
		}

		ordered, err := tx.CountOrderedProducts(ctx, ids, true)
		if err != nil {
			return fmt.Errorf("failed to check order history: %w", err)
		}
		if ordered > 0 {
			return models.NewValidationError("", "Cannot delete a category whose products have been ordered.")
		}

		if err := tx.DeleteProductsByCategories(ctx, ids); err != nil {
			return fmt.Errorf("failed to delete products: %w", err)
		}
		if err := tx.DeleteCategories(ctx, ids); err != nil {
			return err
		}

		s.logger.Info("Category deleted", zap.Int64("category_id", id), zap.Int("subtree_size", len(ids)))
		return nil
	})
}

// AveragePrice averages the prices of active products in the category and
// all of its descendants, rounded half away from zero to 2 places. An empty
// subtree averages to zero.
func (s *CategoryService) AveragePrice(ctx context.Context, id int64) (*AveragePrice, error) {
	ctx, span := util.StartSpan(ctx, "CategoryService.AveragePrice")
	defer span.End()

	tree, err := loadTree(ctx, s.store)
	if err != nil {
		return nil, err
	}
	c, ok := tree.Get(id)
	if !ok {
		return nil, fmt.Errorf("category %d: %w", id, models.ErrNotFound)
	}
	ids, err := tree.SubtreeIDs(id)
	if err != nil {
		return nil, err
	}
	path, err := tree.Path(id)
	if err != nil {
		return nil, err
	}

	prices, err := s.store.ActivePrices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}

	return &AveragePrice{
		Category:     c.Name,
		CategoryPath: path,
		AveragePrice: averagePrice(prices),
		ProductCount: len(prices),
	}, nil
}

func averagePrice(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	sum := decimal.Sum(prices[0], prices[1:]...)
	return sum.Div(decimal.NewFromInt(int64(len(prices)))).Round(2)
}

func loadTree(ctx context.Context, st *store.Store) (*category.Tree, error) {
	categories, err := st.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return category.NewTree(categories), nil
}

func validateCategoryName(verrs *models.ValidationErrors, name string) {
	switch {
	case name == "":
		verrs.Add("name", "This field may not be blank.")
	case len([]rune(name)) > maxCategoryNameLength:
		verrs.Add("name", "Ensure this field has no more than %d characters.", maxCategoryNameLength)
	}
}

func validateParent(verrs *models.ValidationErrors, tree *category.Tree, id int64, parent *int64) error {
	if parent == nil {
		return nil
	}
	if *parent == id {
		verrs.Add("parent", "A category cannot be its own parent.")
		return nil
	}
	if _, ok := tree.Get(*parent); !ok {
		verrs.Add("parent", "Invalid pk \"%d\" - object does not exist.", *parent)
		return nil
	}
	below, err := tree.IsDescendant(id, *parent)
	if err != nil {
		return err
	}
	if below {
		verrs.Add("parent", "A category cannot be moved under one of its descendants.")
	}
	return nil
}

func invalidReference(field string, id int64, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.NewValidationError(field, "Invalid pk \"%d\" - object does not exist.", id)
	}
	return err
}

func newestFirst(categories []models.Category) []models.Category {
	out := append([]models.Category(nil), categories...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func buildNodes(tree *category.Tree, categories []models.Category) ([]CategoryNode, error) {
	nodes := make([]CategoryNode, 0, len(categories))
	for _, c := range categories {
		node, err := nodeFor(tree, c.ID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

// nodeFor checks the subtree is acyclic before building it recursively.
func nodeFor(tree *category.Tree, id int64) (*CategoryNode, error) {
	if _, err := tree.Descendants(id); err != nil {
		return nil, err
	}
	node, err := buildNode(tree, id)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func buildNode(tree *category.Tree, id int64) (CategoryNode, error) {
	c, _ := tree.Get(id)
	path, err := tree.Path(id)
	if err != nil {
		return CategoryNode{}, err
	}

	node := CategoryNode{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		Parent:      c.ParentID,
		Path:        path,
		Children:    []CategoryNode{},
	}
	for _, child := range tree.Children(id) {
		childNode, err := buildNode(tree, child.ID)
		if err != nil {
			return CategoryNode{}, err
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}
