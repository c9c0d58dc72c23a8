package category

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(id int64) *int64 { return &id }

// All Products > Bakery > Bread
//              > Produce > Fruits
func sampleTree() *Tree {
	return NewTree([]models.Category{
		{ID: 1, Name: "All Products"},
		{ID: 2, Name: "Bakery", ParentID: ptr(1)},
		{ID: 3, Name: "Bread", ParentID: ptr(2)},
		{ID: 4, Name: "Produce", ParentID: ptr(1)},
		{ID: 5, Name: "Fruits", ParentID: ptr(4)},
		{ID: 6, Name: "Orphans"},
	})
}

func names(cs []models.Category) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return out
}

func TestAncestors(t *testing.T) {
	tree := sampleTree()

	ancestors, err := tree.Ancestors(3)
	require.NoError(t, err)
	assert.Equal(t, []string{"All Products", "Bakery"}, names(ancestors))

	ancestors, err = tree.Ancestors(1)
	require.NoError(t, err)
	assert.Empty(t, ancestors)

	_, err = tree.Ancestors(99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDescendants(t *testing.T) {
	tree := sampleTree()

	descendants, err := tree.Descendants(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bakery", "Bread", "Produce", "Fruits"}, names(descendants))

	descendants, err = tree.Descendants(3)
	require.NoError(t, err)
	assert.Empty(t, descendants)

	ids, err := tree.SubtreeIDs(4)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, ids)
}

func TestPath(t *testing.T) {
	tree := sampleTree()

	path, err := tree.Path(3)
	require.NoError(t, err)
	assert.Equal(t, "All Products > Bakery > Bread", path)

	path, err = tree.Path(6)
	require.NoError(t, err)
	assert.Equal(t, "Orphans", path)

	for id := int64(1); id <= 6; id++ {
		node, _ := tree.Get(id)
		got, err := tree.Path(id)
		require.NoError(t, err)
		if node.ParentID == nil {
			assert.Equal(t, node.Name, got)
			continue
		}
		parentPath, err := tree.Path(*node.ParentID)
		require.NoError(t, err)
		assert.Equal(t, parentPath+PathSeparator+node.Name, got)
	}
}

func TestAncestorsAndDescendantsAreInverse(t *testing.T) {
	tree := sampleTree()

	for id := int64(1); id <= 6; id++ {
		ancestors, err := tree.Ancestors(id)
		require.NoError(t, err)
		for _, a := range ancestors {
			below, err := tree.IsDescendant(a.ID, id)
			require.NoError(t, err)
			assert.True(t, below, "%d should be below %d", id, a.ID)
		}

		descendants, err := tree.Descendants(id)
		require.NoError(t, err)
		for _, d := range descendants {
			up, err := tree.Ancestors(d.ID)
			require.NoError(t, err)
			assert.Contains(t, names(up), tree.nodes[id].Name)
		}
	}
}

func TestRootsAndChildren(t *testing.T) {
	tree := sampleTree()
	assert.Equal(t, []string{"All Products", "Orphans"}, names(tree.Roots()))
	assert.Equal(t, []string{"Bakery", "Produce"}, names(tree.Children(1)))
	assert.Equal(t, 6, tree.Len())
}

func TestCycleIsReported(t *testing.T) {
	tree := NewTree([]models.Category{
		{ID: 1, Name: "A", ParentID: ptr(2)},
		{ID: 2, Name: "B", ParentID: ptr(1)},
	})

	_, err := tree.Ancestors(1)
	assert.ErrorIs(t, err, ErrCycle)

	_, err = tree.Descendants(1)
	assert.ErrorIs(t, err, ErrCycle)

	_, err = tree.Path(2)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestParsePath(t *testing.T) {
	segments, err := ParsePath(" Bakery >Bread>  Sourdough ")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bakery", "Bread", "Sourdough"}, segments)

	_, err = ParsePath("Bakery >> Bread")
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "category_path", verr.Field)

	_, err = ParsePath("   ")
	assert.Error(t, err)
}

type memResolver struct {
	next     int64
	created  []string
	children map[string]*models.Category
}

func (m *memResolver) GetOrCreateChild(_ context.Context, parentID *int64, name string) (*models.Category, error) {
	var parent int64
	if parentID != nil {
		parent = *parentID
	}
	key := fmt.Sprintf("%d/%s", parent, name)
	if c, ok := m.children[key]; ok {
		return c, nil
	}
	m.next++
	c := &models.Category{ID: m.next, Name: name, ParentID: parentID}
	m.children[key] = c
	m.created = append(m.created, name)
	return c, nil
}

func TestResolvePathIsIdempotent(t *testing.T) {
	r := &memResolver{children: map[string]*models.Category{}}
	ctx := context.Background()

	leaf, err := ResolvePath(ctx, r, "Electronics > Computers > Laptops")
	require.NoError(t, err)
	assert.Equal(t, "Laptops", leaf.Name)

	again, err := ResolvePath(ctx, r, "Electronics>Computers>Laptops")
	require.NoError(t, err)
	assert.Equal(t, leaf.ID, again.ID)

	_, err = ResolvePath(ctx, r, "Electronics > Mobile > Smartphones")
	require.NoError(t, err)
	assert.Equal(t, []string{"Electronics", "Computers", "Laptops", "Mobile", "Smartphones"}, r.created)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "all-products", Slug("All Products"))
	assert.Equal(t, "category", Slug("!!!"))
}
