package category

import (
	"context"
	"strings"

	"github.com/gosimple/slug"

	"storefront/internal/models"
)

// ChildResolver finds a child category by name under a parent (nil for the
// root level), creating it when missing.
type ChildResolver interface {
	GetOrCreateChild(ctx context.Context, parentID *int64, name string) (*models.Category, error)
}

// ParsePath splits "Bakery > Bread > Sourdough" into trimmed segments.
func ParsePath(path string) ([]string, error) {
	raw := strings.Split(path, strings.TrimSpace(PathSeparator))
	segments := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, models.NewValidationError("category_path", "Category path %q contains an empty segment.", path)
		}
		segments = append(segments, s)
	}
	return segments, nil
}

// ResolvePath walks the path from the root, getting or creating one
// category per segment, and returns the leaf. Matching is by name within the
// parent only.
func ResolvePath(ctx context.Context, r ChildResolver, path string) (*models.Category, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	var parent *models.Category
	for _, name := range segments {
		var parentID *int64
		if parent != nil {
			id := parent.ID
			parentID = &id
		}
		child, err := r.GetOrCreateChild(ctx, parentID, name)
		if err != nil {
			return nil, err
		}
		parent = child
	}
	return parent, nil
}

// Slug derives the URL slug for a category name.
func Slug(name string) string {
	s := slug.Make(name)
	if s == "" {
		return "category"
	}
	return s
}
