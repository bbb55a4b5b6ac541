package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lamim/quizforge/internal/generator"
	"github.com/lamim/quizforge/internal/session"
	"github.com/lamim/quizforge/internal/store"
	"github.com/lamim/quizforge/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []generator.Request
	fn    func(ctx context.Context, req generator.Request) ([]models.RawItem, error)
}

func (f *fakeGenerator) GenerateItems(ctx context.Context, req generator.Request) ([]models.RawItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(ctx, req)
}

type memStore struct {
	mu      sync.Mutex
	items   map[string]*models.Item
	nextID  int64
	saveErr error
	// racing hides stored items from Exists and Texts, as a concurrent
	// writer committing between the check and the insert would
	racing bool
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]*models.Item)}
}

func (m *memStore) Exists(_ context.Context, fp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.racing {
		return false, nil
	}
	_, ok := m.items[fp]
	return ok, nil
}

func (m *memStore) Save(_ context.Context, item *models.Item) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	if _, ok := m.items[item.Fingerprint]; ok {
		return 0, store.ErrDuplicate
	}
	m.nextID++
	m.items[item.Fingerprint] = item
	return m.nextID, nil
}

func (m *memStore) Texts(_ context.Context, f store.Filter) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.racing {
		return nil, nil
	}
	var out []string
	for _, it := range m.items {
		if it.Category == f.Category && it.Difficulty == f.Difficulty &&
			models.ScopeKeyString(it.ScopeKey) == models.ScopeKeyString(f.ScopeKey) {
			out = append(out, it.QuestionText)
		}
	}
	return out, nil
}

func (m *memStore) Count(context.Context, store.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

type recordingMirror struct {
	mu    sync.Mutex
	items []*models.Item
	err   error
}

func (r *recordingMirror) Mirror(_ context.Context, item *models.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	return r.err
}

func (r *recordingMirror) Close() error { return nil }

func quizItem(text string) models.RawItem {
	return models.RawItem{"question_text": text, "answer": "x", "explanation": "because"}
}

func newWorker(t *testing.T, gen generator.Generator, st store.Store, deps Deps, opts Options) *Worker {
	t.Helper()
	deps.Generator = gen
	deps.Store = st
	deps.Logger = testLogger()
	w, err := New(deps, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return w
}

var (
	loops = models.ScopeGroup{ID: 1, Name: "Loops", ParentID: 10}
	sets  = models.ScopeGroup{ID: 2, Name: "Sets", ParentID: 10}
)

func TestRunTaskSavesUpToQuota(t *testing.T) {
	gen := &fakeGenerator{fn: func(context.Context, generator.Request) ([]models.RawItem, error) {
		return []models.RawItem{
			quizItem("Which keyword starts a for loop over items?"),
			quizItem("Predict the output of range with three arguments"),
			quizItem("Identify the statement that exits a loop early"),
		}, nil
	}}
	st := newMemStore()
	mir := &recordingMirror{}
	tracker := session.NewTracker(testLogger())
	task := models.NewTask(7, []models.ScopeGroup{loops}, "easy", models.CategoryNonCoding, 2)
	if _, err := tracker.CreateSession("s1", models.CategoryNonCoding, 1, "Loops"); err != nil {
		t.Fatal(err)
	}
	if err := tracker.RegisterTasks("s1", []models.GenerationTask{task}); err != nil {
		t.Fatal(err)
	}

	w := newWorker(t, gen, st, Deps{Mirror: mir, Reporter: tracker}, Options{})
	res := w.RunTask(context.Background(), "s1", task)

	if !res.Success || res.ItemsSaved != 2 {
		t.Fatalf("Expected 2 items saved, got %+v", res)
	}
	if res.SuccessfulAttempts != 1 || res.FailedAttempts != 0 {
		t.Errorf("Expected 1/0 attempts, got %d/%d", res.SuccessfulAttempts, res.FailedAttempts)
	}
	if len(mir.items) != 2 {
		t.Errorf("Expected 2 mirrored items, got %d", len(mir.items))
	}
	if mir.items[0].SessionID != "s1" || mir.items[0].Fingerprint == "" || mir.items[0].ID == 0 {
		t.Errorf("Expected saved item with session, fingerprint and id, got %+v", mir.items[0])
	}
	if !strings.Contains(gen.calls[0].Context, "FALLBACK MODE") {
		t.Errorf("Expected fallback context without a retriever, got %q", gen.calls[0].Context)
	}

	workers, err := tracker.Workers("s1")
	if err != nil {
		t.Fatal(err)
	}
	if workers[0].State != models.WorkerCompleted || workers[0].ItemsSaved != 2 {
		t.Errorf("Expected completed worker with 2 items, got %+v", workers[0])
	}
}

func TestRunTaskExactDuplicateAcrossCalls(t *testing.T) {
	texts := []string{
		"What does the len function return for a list?",
		"what does the LEN function return for a list",
	}
	call := 0
	gen := &fakeGenerator{fn: func(context.Context, generator.Request) ([]models.RawItem, error) {
		text := texts[call]
		call++
		return []models.RawItem{quizItem(text)}, nil
	}}
	st := newMemStore()
	w := newWorker(t, gen, st, Deps{}, Options{})
	task := models.NewTask(1, []models.ScopeGroup{loops}, "easy", models.CategoryNonCoding, 1)

	first := w.RunTask(context.Background(), "s1", task)
	second := w.RunTask(context.Background(), "s1", task)

	if first.ItemsSaved != 1 {
		t.Fatalf("Expected first call to save, got %+v", first)
	}
	if second.DuplicatesSkipped != 1 || second.ItemsSaved != 0 {
		t.Errorf("Expected duplicatesSkipped == 1, got %+v", second)
	}
	if second.Success || second.Error == nil || second.Error.Kind != models.ErrKindNoValidItems {
		t.Errorf("Expected no_valid_items when every candidate is a duplicate, got %+v", second.Error)
	}
}

func TestRunTaskNearDuplicateWithinBatch(t *testing.T) {
	gen := &fakeGenerator{fn: func(context.Context, generator.Request) ([]models.RawItem, error) {
		return []models.RawItem{
			quizItem("What is a variable?"),
			quizItem("What's a variable?"),
			quizItem("How do you create an empty set?"),
		}, nil
	}}
	w := newWorker(t, gen, newMemStore(), Deps{}, Options{})
	task := models.NewTask(1, []models.ScopeGroup{sets}, "easy", models.CategoryNonCoding, 5)

	res := w.RunTask(context.Background(), "s1", task)
	if res.ItemsSaved != 2 || res.DuplicatesSkipped != 1 {
		t.Errorf("Expected 2 saved and 1 duplicate, got %+v", res)
	}
}

func TestRunTaskUniqueViolationCountsAsDuplicate(t *testing.T) {
	gen := &fakeGenerator{fn: func(context.Context, generator.Request) ([]models.RawItem, error) {
		return []models.RawItem{quizItem("Explain list slicing with a negative step")}, nil
	}}
	st := newMemStore()
	st.racing = true
	w := newWorker(t, gen, st, Deps{}, Options{})
	task := models.NewTask(1, []models.ScopeGroup{loops}, "easy", models.CategoryNonCoding, 1)

	if res := w.RunTask(context.Background(), "s1", task); res.ItemsSaved != 1 {
		t.Fatalf("Expected first call to save, got %+v", res)
	}

	res := w.RunTask(context.Background(), "s2", task)
	if res.DuplicatesSkipped != 1 || res.ItemsSaved != 0 {
		t.Errorf("Expected constraint violation counted as duplicate, got %+v", res)
	}
}

func TestRunTaskFallback(t *testing.T) {
	gen := &fakeGenerator{fn: func(_ context.Context, req generator.Request) ([]models.RawItem, error) {
		if len(req.Task.Groups) > 1 {
			return nil, errors.New("upstream 503")
		}
		return []models.RawItem{quizItem("Describe how " + req.Task.Groups[0].Name + " behave in Python")}, nil
	}}
	w := newWorker(t, gen, newMemStore(), Deps{}, Options{})
	task := models.NewTask(3, []models.ScopeGroup{loops, sets}, "advanced", models.CategoryNonCoding, 1)

	res := w.RunTask(context.Background(), "s1", task)

	if !res.FallbackUsed {
		t.Fatal("Expected fallback to be used")
	}
	if res.SuccessfulAttempts != 2 || res.FailedAttempts != 0 {
		t.Errorf("Expected 2 successful fallback attempts, got %d/%d", res.SuccessfulAttempts, res.FailedAttempts)
	}
	if res.ItemsSaved != 2 || !res.Success || res.Error != nil {
		t.Errorf("Expected success with 2 items, got %+v", res)
	}
	if len(gen.calls) != 3 {
		t.Fatalf("Expected 3 generation calls, got %d", len(gen.calls))
	}
	for _, call := range gen.calls[1:] {
		if len(call.Task.Groups) != 1 || call.Quota != 1 {
			t.Errorf("Expected single-group fallback with the same quota, got %+v", call.Task)
		}
	}
}

func TestRunTaskFallbackPartialFailure(t *testing.T) {
	gen := &fakeGenerator{fn: func(_ context.Context, req generator.Request) ([]models.RawItem, error) {
		if len(req.Task.Groups) > 1 || req.Task.Groups[0].ID == sets.ID {
			return nil, fmt.Errorf("%w: truncated", generator.ErrMalformedOutput)
		}
		return []models.RawItem{quizItem("Which loop runs while a condition holds true?")}, nil
	}}
	w := newWorker(t, gen, newMemStore(), Deps{}, Options{})
	task := models.NewTask(3, []models.ScopeGroup{loops, sets}, "advanced", models.CategoryNonCoding, 2)

	res := w.RunTask(context.Background(), "s1", task)
	if res.SuccessfulAttempts != 1 || res.FailedAttempts != 1 {
		t.Errorf("Expected 1/1 attempts, got %d/%d", res.SuccessfulAttempts, res.FailedAttempts)
	}
	if !res.Success || res.ItemsSaved != 1 {
		t.Errorf("Expected partial success, got %+v", res)
	}
}

func TestRunTaskErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		fn       func(ctx context.Context, req generator.Request) ([]models.RawItem, error)
		saveErr  error
		wantKind models.TaskErrorKind
		wantMsg  string
		invalid  int
	}{
		{
			name: "call failure",
			fn: func(context.Context, generator.Request) ([]models.RawItem, error) {
				return nil, errors.New("connection refused")
			},
			wantKind: models.ErrKindGenerationCall,
			wantMsg:  "connection refused",
		},
		{
			name: "timeout",
			fn: func(ctx context.Context, _ generator.Request) ([]models.RawItem, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			wantKind: models.ErrKindGenerationCall,
			wantMsg:  "timed out",
		},
		{
			name: "malformed output",
			fn: func(context.Context, generator.Request) ([]models.RawItem, error) {
				return nil, fmt.Errorf("%w: no JSON found", generator.ErrMalformedOutput)
			},
			wantKind: models.ErrKindParse,
		},
		{
			name: "missing fields",
			fn: func(context.Context, generator.Request) ([]models.RawItem, error) {
				return []models.RawItem{
					{"question_text": "What is a tuple?"},
					{"question_text": "  ", "answer": "x", "explanation": "y"},
				}, nil
			},
			wantKind: models.ErrKindNoValidItems,
			invalid:  2,
		},
		{
			name: "save failure",
			fn: func(context.Context, generator.Request) ([]models.RawItem, error) {
				return []models.RawItem{quizItem("How are dictionary keys hashed in Python?")}, nil
			},
			saveErr:  errors.New("disk full"),
			wantKind: models.ErrKindSave,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore()
			st.saveErr = tt.saveErr
			w := newWorker(t, &fakeGenerator{fn: tt.fn}, st, Deps{}, Options{RequestTimeout: 20 * time.Millisecond})
			task := models.NewTask(1, []models.ScopeGroup{loops}, "easy", models.CategoryNonCoding, 1)

			res := w.RunTask(context.Background(), "s1", task)
			if res.Success || res.Error == nil {
				t.Fatalf("Expected failure, got %+v", res)
			}
			if res.Error.Kind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, res.Error.Kind)
			}
			if tt.wantMsg != "" && !strings.Contains(res.Error.Message, tt.wantMsg) {
				t.Errorf("Expected message containing %q, got %q", tt.wantMsg, res.Error.Message)
			}
			if res.InvalidItems != tt.invalid {
				t.Errorf("Expected %d invalid items, got %d", tt.invalid, res.InvalidItems)
			}
			if res.FailedAttempts != 1 || res.FallbackUsed {
				t.Errorf("Expected a single failed attempt, got %+v", res)
			}
		})
	}
}

func TestRunTaskMirrorFailureIsNotFatal(t *testing.T) {
	gen := &fakeGenerator{fn: func(context.Context, generator.Request) ([]models.RawItem, error) {
		return []models.RawItem{quizItem("What does enumerate yield on each step?")}, nil
	}}
	mir := &recordingMirror{err: errors.New("nats down")}
	w := newWorker(t, gen, newMemStore(), Deps{Mirror: mir}, Options{})

	res := w.RunTask(context.Background(), "s1", models.NewTask(1, []models.ScopeGroup{loops}, "easy", models.CategoryNonCoding, 1))
	if !res.Success || res.ItemsSaved != 1 {
		t.Errorf("Expected mirror errors to be ignored, got %+v", res)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Error("Expected error without generator and store")
	}
}
