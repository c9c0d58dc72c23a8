// Package category holds the category forest: an id-indexed arena of
// categories with parent links, and the walks over it.
package category

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"storefront/internal/models"
)

// PathSeparator joins category names in a human readable path.
const PathSeparator = " > "

// ErrCycle is returned when following parent links revisits a node.
var ErrCycle = errors.New("category parent links form a cycle")

// Tree is an arena of categories keyed by id. Parent and child relations are
// resolved through the index, never through pointers between nodes.
type Tree struct {
	nodes    map[int64]models.Category
	children map[int64][]int64
	roots    []int64
}

// NewTree indexes categories. A parent id that does not resolve to a loaded
// category makes the node a root.
func NewTree(categories []models.Category) *Tree {
	t := &Tree{
		nodes:    make(map[int64]models.Category, len(categories)),
		children: make(map[int64][]int64),
	}
	for _, c := range categories {
		t.nodes[c.ID] = c
	}
	for _, c := range categories {
		if c.ParentID != nil {
			if _, ok := t.nodes[*c.ParentID]; ok {
				t.children[*c.ParentID] = append(t.children[*c.ParentID], c.ID)
				continue
			}
		}
		t.roots = append(t.roots, c.ID)
	}
	for id := range t.children {
		sortIDs(t.children[id])
	}
	sortIDs(t.roots)
	return t
}

// Len returns the number of indexed categories.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Get returns the category with the given id.
func (t *Tree) Get(id int64) (models.Category, bool) {
	c, ok := t.nodes[id]
	return c, ok
}

// Roots returns every root category ordered by id.
func (t *Tree) Roots() []models.Category {
	return t.collect(t.roots)
}

// Children returns the direct children of id ordered by id.
func (t *Tree) Children(id int64) []models.Category {
	return t.collect(t.children[id])
}

// Ancestors returns the chain of parents of id, root first. A root has no
// ancestors.
func (t *Tree) Ancestors(id int64) ([]models.Category, error) {
	node, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("category %d: %w", id, models.ErrNotFound)
	}

	visited := map[int64]bool{id: true}
	var chain []models.Category
	for node.ParentID != nil {
		parent, ok := t.nodes[*node.ParentID]
		if !ok {
			break
		}
		if visited[parent.ID] {
			return nil, fmt.Errorf("category %d: %w", id, ErrCycle)
		}
		visited[parent.ID] = true
		chain = append(chain, parent)
		node = parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Descendants returns every category below id in pre-order.
func (t *Tree) Descendants(id int64) ([]models.Category, error) {
	if _, ok := t.nodes[id]; !ok {
		return nil, fmt.Errorf("category %d: %w", id, models.ErrNotFound)
	}

	visited := map[int64]bool{id: true}
	var out []models.Category
	var walk func(parent int64) error
	walk = func(parent int64) error {
		for _, childID := range t.children[parent] {
			if visited[childID] {
				return fmt.Errorf("category %d: %w", id, ErrCycle)
			}
			visited[childID] = true
			out = append(out, t.nodes[childID])
			if err := walk(childID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(id); err != nil {
		return nil, err
	}
	return out, nil
}

// SubtreeIDs returns id followed by the ids of all its descendants.
func (t *Tree) SubtreeIDs(id int64) ([]int64, error) {
	descendants, err := t.Descendants(id)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(descendants)+1)
	ids = append(ids, id)
	for _, d := range descendants {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// Path joins the ancestor names and the node's own name with PathSeparator.
func (t *Tree) Path(id int64) (string, error) {
	ancestors, err := t.Ancestors(id)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(ancestors)+1)
	for _, a := range ancestors {
		names = append(names, a.Name)
	}
	names = append(names, t.nodes[id].Name)
	return strings.Join(names, PathSeparator), nil
}

// IsDescendant reports whether candidate lies strictly below id.
func (t *Tree) IsDescendant(id, candidate int64) (bool, error) {
	descendants, err := t.Descendants(id)
	if err != nil {
		return false, err
	}
	for _, d := range descendants {
		if d.ID == candidate {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tree) collect(ids []int64) []models.Category {
	out := make([]models.Category, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.nodes[id])
	}
	return out
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
