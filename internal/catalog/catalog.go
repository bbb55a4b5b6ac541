// Package catalog resolves group ids to the configured topic groups.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lamim/quizforge/pkg/models"
)

// ErrUnknownGroup is returned when an id is not in the catalog
var ErrUnknownGroup = errors.New("unknown group")

// Catalog is an immutable set of groups keyed by id
type Catalog struct {
	groups map[int64]models.ScopeGroup
}

// New builds a catalog, rejecting duplicate or non-positive ids
func New(groups []models.ScopeGroup) (*Catalog, error) {
	c := &Catalog{groups: make(map[int64]models.ScopeGroup, len(groups))}
	for _, g := range groups {
		if g.ID <= 0 {
			return nil, fmt.Errorf("group %q has invalid id %d", g.Name, g.ID)
		}
		if _, dup := c.groups[g.ID]; dup {
			return nil, fmt.Errorf("duplicate group id %d", g.ID)
		}
		if g.Name == "" {
			g.Name = fmt.Sprintf("group-%d", g.ID)
		}
		c.groups[g.ID] = g
	}
	return c, nil
}

// Resolve returns the groups for ids in the given order
func (c *Catalog) Resolve(ids []int64) ([]models.ScopeGroup, error) {
	out := make([]models.ScopeGroup, 0, len(ids))
	var missing []int64
	for _, id := range ids {
		g, ok := c.groups[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, g)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownGroup, missing)
	}
	return out, nil
}

// Get returns one group
func (c *Catalog) Get(id int64) (models.ScopeGroup, bool) {
	g, ok := c.groups[id]
	return g, ok
}

// All returns every group ordered by id
func (c *Catalog) All() []models.ScopeGroup {
	out := make([]models.ScopeGroup, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
