package catalog

import (
	"errors"
	"testing"

	"github.com/lamim/quizforge/pkg/models"
)

func TestCatalogResolve(t *testing.T) {
	c, err := New([]models.ScopeGroup{
		{ID: 2, Name: "Loops", ParentID: 1},
		{ID: 1, Name: "Variables", ParentID: 1},
		{ID: 5},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	groups, err := c.Resolve([]int64{1, 2})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if groups[0].Name != "Variables" || groups[1].Name != "Loops" {
		t.Errorf("Expected request order preserved, got %+v", groups)
	}

	if g, _ := c.Get(5); g.Name != "group-5" {
		t.Errorf("Expected default name, got %q", g.Name)
	}

	if _, err := c.Resolve([]int64{1, 9}); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("Expected ErrUnknownGroup, got %v", err)
	}

	all := c.All()
	if len(all) != 3 || all[0].ID != 1 || all[2].ID != 5 {
		t.Errorf("Expected groups sorted by id, got %+v", all)
	}
}

func TestCatalogRejectsBadIDs(t *testing.T) {
	tests := []struct {
		name   string
		groups []models.ScopeGroup
	}{
		{"zero id", []models.ScopeGroup{{ID: 0, Name: "x"}}},
		{"duplicate", []models.ScopeGroup{{ID: 1}, {ID: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.groups); err == nil {
				t.Error("Expected error")
			}
		})
	}
}
