package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lamim/quizforge/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDirRetrieverLookupOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "coding", "1.md"), "coding loops content")
	writeFile(t, filepath.Join(dir, "1.md"), "shared loops content")
	writeFile(t, filepath.Join(dir, "2.txt"), "  sets content\n")

	r := NewDirRetriever(dir, 0)
	ctx := context.Background()

	tests := []struct {
		name     string
		group    int64
		category models.Category
		want     string
	}{
		{"category specific", 1, models.CategoryCoding, "coding loops content"},
		{"shared fallback", 1, models.CategoryNonCoding, "shared loops content"},
		{"txt trimmed", 2, models.CategoryCoding, "sets content"},
		{"missing", 3, models.CategoryCoding, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Retrieve(ctx, models.ScopeGroup{ID: tt.group}, tt.category)
			if err != nil {
				t.Fatalf("Retrieve failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDirRetrieverTruncates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "5.md"), strings.Repeat("a", 100))

	got, err := NewDirRetriever(dir, 10).Retrieve(context.Background(), models.ScopeGroup{ID: 5}, models.CategoryCoding)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Errorf("Expected 10 bytes, got %d", len(got))
	}
}

type countingRetriever struct {
	calls   int
	content map[int64]string
	err     error
}

func (c *countingRetriever) Retrieve(_ context.Context, g models.ScopeGroup, _ models.Category) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.content[g.ID], nil
}

func TestCachedRetriever(t *testing.T) {
	inner := &countingRetriever{content: map[int64]string{1: "loops"}}
	c := NewCached(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.Retrieve(ctx, models.ScopeGroup{ID: 1}, models.CategoryCoding)
		if err != nil || got != "loops" {
			t.Fatalf("Unexpected result %q, %v", got, err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 inner call, got %d", inner.calls)
	}

	c.Retrieve(ctx, models.ScopeGroup{ID: 1}, models.CategoryNonCoding)
	if inner.calls != 2 {
		t.Errorf("Expected category to be part of the key, got %d calls", inner.calls)
	}

	c.Flush()
	c.Retrieve(ctx, models.ScopeGroup{ID: 1}, models.CategoryCoding)
	if inner.calls != 3 {
		t.Errorf("Expected flush to drop entries, got %d calls", inner.calls)
	}
}

func TestCachedRetrieverDoesNotCacheErrors(t *testing.T) {
	inner := &countingRetriever{err: errors.New("backend down")}
	c := NewCached(inner, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.Retrieve(context.Background(), models.ScopeGroup{ID: 1}, models.CategoryCoding); err == nil {
			t.Fatal("Expected error")
		}
	}
	if inner.calls != 2 {
		t.Errorf("Expected errors to bypass cache, got %d calls", inner.calls)
	}
}

func TestBuildContext(t *testing.T) {
	groups := []models.ScopeGroup{{ID: 1, Name: "Loops"}, {ID: 2, Name: "Sets"}}
	task := models.NewTask(1, groups, "advanced", models.CategoryNonCoding, 3)

	t.Run("with content", func(t *testing.T) {
		r := &countingRetriever{content: map[int64]string{1: "for and while"}}
		got := BuildContext(context.Background(), r, task, testLogger())
		if !strings.Contains(got, "=== Loops ===\nfor and while") {
			t.Errorf("Expected Loops section, got %q", got)
		}
		if strings.Contains(got, "=== Sets ===") {
			t.Errorf("Expected empty group omitted, got %q", got)
		}
		if !strings.Contains(got, "Loops + Sets") || !strings.Contains(got, "ADVANCED") {
			t.Errorf("Expected header with combination and difficulty, got %q", got)
		}
	})

	t.Run("fallback", func(t *testing.T) {
		r := &countingRetriever{err: errors.New("backend down")}
		got := BuildContext(context.Background(), r, task, testLogger())
		if !strings.HasPrefix(got, FallbackMarker) {
			t.Errorf("Expected fallback context, got %q", got)
		}
		if !strings.Contains(got, "- Loops: focus on advanced-level concepts") {
			t.Errorf("Expected per-group guidance, got %q", got)
		}
	})
}
