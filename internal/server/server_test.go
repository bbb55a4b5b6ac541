package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamim/quizforge/internal/config"
	"github.com/lamim/quizforge/internal/orchestrator"
	"github.com/lamim/quizforge/internal/session"
	"github.com/lamim/quizforge/internal/store"
	"github.com/lamim/quizforge/pkg/models"
)

type fakeService struct {
	startErr  error
	lastReq   orchestrator.Request
	sessions  map[string]models.SessionSnapshot
	workers   []models.WorkerStatus
	cancelled map[string]string
}

func newFakeService() *fakeService {
	return &fakeService{
		sessions: map[string]models.SessionSnapshot{
			"s1": {Session: models.Session{ID: "s1", Status: models.StatusProcessing, TotalTasks: 4}},
		},
		workers: []models.WorkerStatus{
			{TaskID: 1, State: models.WorkerRunning},
			{TaskID: 2, State: models.WorkerPending},
		},
		cancelled: make(map[string]string),
	}
}

func (f *fakeService) Start(req orchestrator.Request) (string, error) {
	f.lastReq = req
	if f.startErr != nil {
		return "", f.startErr
	}
	return "new-session", nil
}

func (f *fakeService) Prepare(req orchestrator.Request) (*orchestrator.Plan, error) {
	if len(req.GroupIDs) == 0 {
		return nil, fmt.Errorf("%w: no groups", orchestrator.ErrInvalidRequest)
	}
	task := models.NewTask(1, []models.ScopeGroup{{ID: req.GroupIDs[0], Name: "Loops"}}, "easy", req.Category, 2)
	return &orchestrator.Plan{Request: req, Tasks: []models.GenerationTask{task}}, nil
}

func (f *fakeService) Status(id string) (models.SessionSnapshot, bool) {
	s, ok := f.sessions[id]
	return s, ok
}

func (f *fakeService) Workers(id string) ([]models.WorkerStatus, error) {
	if _, ok := f.sessions[id]; !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	return f.workers, nil
}

func (f *fakeService) Cancel(id, reason string) (bool, error) {
	if _, ok := f.sessions[id]; !ok {
		return false, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	if _, done := f.cancelled[id]; done {
		return false, nil
	}
	f.cancelled[id] = reason
	return true, nil
}

func (f *fakeService) List() []models.SessionSnapshot {
	out := make([]models.SessionSnapshot, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out
}

type fakeItems struct {
	lastFilter store.Filter
	pingErr    error
}

func (f *fakeItems) Count(_ context.Context, filter store.Filter) (int, error) {
	f.lastFilter = filter
	return 42, nil
}

func (f *fakeItems) Ping(context.Context) error { return f.pingErr }

func newTestServer() (*Server, *fakeService, *fakeItems) {
	svc := newFakeService()
	items := &fakeItems{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(svc, items, config.ServerConfig{Addr: ":0"}, logger), svc, items
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStartSession(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		want     int
	}{
		{"accepted", `{"category":"non_coding","group_ids":[1,2],"quota_per_group":2}`, nil, http.StatusAccepted},
		{"malformed body", `{"category":`, nil, http.StatusBadRequest},
		{"unknown field", `{"categories":"x"}`, nil, http.StatusBadRequest},
		{"planning error", `{"category":"non_coding"}`, fmt.Errorf("%w: no groups", orchestrator.ErrInvalidRequest), http.StatusBadRequest},
		{"duplicate id", `{"category":"non_coding","group_ids":[1],"quota_per_group":1}`, session.ErrSessionExists, http.StatusConflict},
		{"shutting down", `{"category":"non_coding","group_ids":[1],"quota_per_group":1}`, orchestrator.ErrShuttingDown, http.StatusServiceUnavailable},
		{"unexpected", `{"category":"non_coding","group_ids":[1],"quota_per_group":1}`, errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, svc, _ := newTestServer()
			svc.startErr = tt.startErr

			rec := do(t, s, http.MethodPost, "/api/v1/sessions", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusAccepted {
				assert.Equal(t, "new-session", decodeBody(t, rec)["session_id"])
				assert.Equal(t, []int64{1, 2}, svc.lastReq.GroupIDs)
				assert.Equal(t, 2, svc.lastReq.QuotaPerGroup)
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	s, _, _ := newTestServer()

	rec := do(t, s, http.MethodGet, "/api/v1/sessions/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "s1", body["session_id"])
	assert.Equal(t, "processing", body["status"])

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions(t *testing.T) {
	s, _, _ := newTestServer()

	rec := do(t, s, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])
}

func TestGetWorkers(t *testing.T) {
	s, _, _ := newTestServer()

	rec := do(t, s, http.MethodGet, "/api/v1/sessions/s1/workers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["active"])
	assert.EqualValues(t, 1, summary["pending"])
	assert.Len(t, body["workers"], 2)

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/missing/workers", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelSession(t *testing.T) {
	s, svc, _ := newTestServer()

	rec := do(t, s, http.MethodPost, "/api/v1/sessions/s1/cancel", `{"reason":"operator"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["cancelled"])
	assert.Equal(t, "operator", svc.cancelled["s1"])

	// Idempotent, and the body is optional
	rec = do(t, s, http.MethodPost, "/api/v1/sessions/s1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["cancelled"])

	rec = do(t, s, http.MethodPost, "/api/v1/sessions/missing/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlanPreview(t *testing.T) {
	s, _, _ := newTestServer()

	rec := do(t, s, http.MethodPost, "/api/v1/plan", `{"category":"coding","group_ids":[7],"quota_per_group":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decodeBody(t, rec)["tasks"].([]any)
	assert.Len(t, tasks, 1)

	rec = do(t, s, http.MethodPost, "/api/v1/plan", `{"category":"coding"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCountItems(t *testing.T) {
	s, _, items := newTestServer()

	rec := do(t, s, http.MethodGet, "/api/v1/items/count?category=coding&difficulty=easy&group_id=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 42, decodeBody(t, rec)["count"])
	assert.Equal(t, store.Filter{Category: models.CategoryCoding, Difficulty: "easy", GroupID: 3}, items.lastFilter)

	rec = do(t, s, http.MethodGet, "/api/v1/items/count?group_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/items/count?category=essay", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReadyAndMetrics(t *testing.T) {
	s, _, items := newTestServer()

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/ready", "").Code)

	items.pingErr = errors.New("database is locked")
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/ready", "").Code)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
