package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/category"
	"storefront/internal/models"
)

const categoryColumns = `id, name, slug, description, parent_id, created_at`

// ListCategories returns every category.
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := s.q.SelectContext(ctx, &categories,
		s.rebind("SELECT "+categoryColumns+" FROM categories ORDER BY id"))
	return categories, err
}

// GetCategory retrieves a category by ID
func (s *Store) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	err := s.get(ctx, &c, "SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
	if err != nil {
		return nil, notFound(err, "category", id)
	}
	return &c, nil
}

// CreateCategory inserts a category, deriving a unique slug from its name.
func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	slug, err := s.uniqueSlug(ctx, category.Slug(c.Name), 0)
	if err != nil {
		return err
	}
	c.Slug = slug
	c.CreatedAt = now()

	err = s.get(ctx, &c.ID, `
		INSERT INTO categories (name, slug, description, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		c.Name, c.Slug, c.Description, c.ParentID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// UpdateCategory stores name, description and parent. The slug follows the
// name.
func (s *Store) UpdateCategory(ctx context.Context, c *models.Category) error {
	slug, err := s.uniqueSlug(ctx, category.Slug(c.Name), c.ID)
	if err != nil {
		return err
	}
	c.Slug = slug

	res, err := s.exec(ctx, `
		UPDATE categories SET name = ?, slug = ?, description = ?, parent_id = ?
		WHERE id = ?`,
		c.Name, c.Slug, c.Description, c.ParentID, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return expectRow(res, "category", c.ID)
}

// DeleteCategories removes the given categories. Callers delete children
// before parents or pass a whole subtree.
func (s *Store) DeleteCategories(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	// detach first so the self-reference never blocks the delete
	if _, err := s.execIn(ctx, "UPDATE categories SET parent_id = NULL WHERE id IN (?)", ids); err != nil {
		return fmt.Errorf("failed to detach categories: %w", err)
	}
	if _, err := s.execIn(ctx, "DELETE FROM categories WHERE id IN (?)", ids); err != nil {
		return fmt.Errorf("failed to delete categories: %w", err)
	}
	return nil
}

// GetOrCreateChild finds the category called name directly under parentID
// (nil meaning a root), creating it when absent.
func (s *Store) GetOrCreateChild(ctx context.Context, parentID *int64, name string) (*models.Category, error) {
	var (
		c   models.Category
		err error
	)
	if parentID == nil {
		err = s.get(ctx, &c, "SELECT "+categoryColumns+
			" FROM categories WHERE name = ? AND parent_id IS NULL ORDER BY id LIMIT 1", name)
	} else {
		err = s.get(ctx, &c, "SELECT "+categoryColumns+
			" FROM categories WHERE name = ? AND parent_id = ? ORDER BY id LIMIT 1", name, *parentID)
	}
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	c = models.Category{Name: name, ParentID: parentID}
	if err := s.CreateCategory(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) uniqueSlug(ctx context.Context, base string, excludeID int64) (string, error) {
	candidate := base
	for n := 2; ; n++ {
		var count int
		err := s.get(ctx, &count,
			"SELECT COUNT(*) FROM categories WHERE slug = ? AND id <> ?", candidate, excludeID)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}
