package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamim/quizforge/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "items.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(fp string, scope []int64, difficulty string) *models.Item {
	return &models.Item{
		Fingerprint:  fp,
		SessionID:    "s1",
		Category:     models.CategoryNonCoding,
		Difficulty:   difficulty,
		ScopeKey:     scope,
		GroupNames:   []string{"Loops"},
		QuestionText: "Question " + fp,
		Answer:       "Answer",
		Explanation:  "Because",
		CreatedAt:    time.Unix(1700000000, 0),
	}
}

func TestSQLiteSaveAndExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exists, err := s.Exists(ctx, "abc123def456")
	require.NoError(t, err)
	assert.False(t, exists)

	item := testItem("abc123def456", []int64{1}, "easy")
	id, err := s.Save(ctx, item)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, item.ID)

	exists, err = s.Exists(ctx, "abc123def456")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLiteDuplicateFingerprint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, testItem("samefp000001", []int64{1}, "easy"))
	require.NoError(t, err)

	_, err = s.Save(ctx, testItem("samefp000001", []int64{2}, "master"))
	assert.True(t, errors.Is(err, ErrDuplicate), "expected ErrDuplicate, got %v", err)

	n, err := s.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteConcurrentDuplicateSaves(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	saved, dups := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Save(ctx, testItem("racefp000001", []int64{1}, "easy"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				saved++
			case errors.Is(err, ErrDuplicate):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, saved)
	assert.Equal(t, 7, dups)
	n, err := s.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteTextsAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fixtures := []struct {
		scope      []int64
		difficulty string
	}{
		{[]int64{1}, "easy"},
		{[]int64{1}, "easy"},
		{[]int64{1}, "master"},
		{[]int64{2, 1}, "easy"},
		{[]int64{3}, "easy"},
	}
	for i, f := range fixtures {
		_, err := s.Save(ctx, testItem(fmt.Sprintf("fp%010d", i), f.scope, f.difficulty))
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 5},
		{"category", Filter{Category: models.CategoryNonCoding}, 5},
		{"other category", Filter{Category: models.CategoryCoding}, 0},
		{"difficulty", Filter{Difficulty: "easy"}, 4},
		{"scope key", Filter{ScopeKey: []int64{1}}, 3},
		{"scope key any order", Filter{ScopeKey: []int64{1, 2}}, 1},
		{"group membership", Filter{GroupID: 1}, 4},
		{"combined", Filter{GroupID: 1, Difficulty: "easy"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	texts, err := s.Texts(ctx, Filter{ScopeKey: []int64{1}, Difficulty: "easy", Limit: 1})
	require.NoError(t, err)
	require.Len(t, texts, 1)
	assert.Equal(t, "Question fp0000000001", texts[0], "expected newest item first")
}

func TestSQLiteStoresCodingFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := testItem("codingfp0001", []int64{4}, "advanced")
	item.Category = models.CategoryCoding
	item.HiddenTests = json.RawMessage(`[{"input":"1","output":"2"}]`)
	item.FunctionName = "add_one"
	item.Context = strings.Repeat("x", 5000)

	_, err := s.Save(ctx, item)
	require.NoError(t, err)

	var hidden, fn string
	var contextLen int
	err = s.db.QueryRowContext(ctx,
		`SELECT hidden_tests, function_name, length(context) FROM items WHERE fingerprint = ?`,
		"codingfp0001").Scan(&hidden, &fn, &contextLen)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"input":"1","output":"2"}]`, hidden)
	assert.Equal(t, "add_one", fn)
	assert.LessOrEqual(t, contextLen, maxContextLength+3)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "postgres"})
	assert.Error(t, err)
}
