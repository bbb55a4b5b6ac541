// Package session keeps the in-memory registry of generation sessions.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lamim/quizforge/pkg/models"
)

var (
	// ErrSessionExists is returned when creating a session with an id already in use
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is returned for unknown session ids
	ErrSessionNotFound = errors.New("session not found")
)

type entry struct {
	session models.Session
	workers map[int]*models.WorkerStatus
}

// Tracker is a registry of sessions guarded by a single mutex.
// Every method returns copies; the stored sessions never escape.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*entry
	now      func() time.Time
	logger   *slog.Logger
}

// NewTracker creates an empty tracker
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		sessions: make(map[string]*entry),
		now:      time.Now,
		logger:   logger,
	}
}

// CreateSession registers a new session in the initializing state
func (t *Tracker) CreateSession(id string, category models.Category, totalTasks int, scopeDescription string) (models.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.sessions[id]; exists {
		return models.Session{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	now := t.now()
	s := models.Session{
		ID:               id,
		Category:         category,
		Status:           models.StatusInitializing,
		ScopeDescription: scopeDescription,
		TotalTasks:       totalTasks,
		StartTime:        now,
		LastUpdated:      now,
	}
	t.sessions[id] = &entry{session: s, workers: make(map[int]*models.WorkerStatus)}

	t.logger.Debug("Session created", "session_id", id, "total_tasks", totalTasks)
	return s, nil
}

// UpdateStatus merges u into the stored session and returns the session
// before and after the merge. A cancelled session keeps its status; the rest
// of the update still applies.
func (t *Tracker) UpdateStatus(id string, u models.SessionUpdate) (prev, next models.Session, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[id]
	if !ok {
		return models.Session{}, models.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	prev = e.session
	s := &e.session
	now := t.now()

	if u.Status != nil && *u.Status != s.Status {
		switch {
		case s.Status == models.StatusCancelled:
			t.logger.Debug("Dropping status change on cancelled session",
				"session_id", id, "requested", *u.Status)
		case s.Status.IsTerminal():
			t.logger.Debug("Dropping status change on finished session",
				"session_id", id, "status", s.Status, "requested", *u.Status)
		default:
			s.Status = *u.Status
			if s.Status == models.StatusCancelled {
				s.CancelTime = &now
			}
			if s.Status.IsTerminal() {
				s.CompletionTime = &now
			}
		}
	}
	if u.CurrentTaskLabel != nil {
		s.CurrentTaskLabel = *u.CurrentTaskLabel
	}
	if u.CurrentDifficulty != nil {
		s.CurrentDifficulty = *u.CurrentDifficulty
	}
	if u.Error != nil {
		s.Error = *u.Error
	}

	s.CompletedTasks += u.CompletedDelta
	s.ResolvedTasks += u.ResolvedDelta
	s.SuccessfulTasks += u.SuccessfulDelta
	s.FailedTasks += u.FailedDelta
	s.TotalItemsGenerated += u.ItemsDelta
	s.DuplicatesSkipped += u.DuplicatesDelta
	s.LastUpdated = now

	return prev, *s, nil
}

// CancelSession moves an initializing or processing session to cancelled.
// It returns false when the session is unknown or already finished.
func (t *Tracker) CancelSession(id, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[id]
	if !ok || !e.session.Status.Cancellable() {
		return false
	}

	now := t.now()
	e.session.Status = models.StatusCancelled
	e.session.CancelReason = reason
	e.session.CancelTime = &now
	e.session.LastUpdated = now

	for _, w := range e.workers {
		if w.State == models.WorkerPending {
			w.State = models.WorkerCancelled
			w.LastUpdated = now
		}
	}

	t.logger.Info("Session cancelled", "session_id", id, "reason", reason)
	return true
}

// Finish sets the terminal status of a session and stamps its completion time.
// A cancelled session keeps its status but still gets a completion time.
func (t *Tracker) Finish(id string, status models.SessionStatus, errMsg string) (models.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[id]
	if !ok {
		return models.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	now := t.now()
	s := &e.session
	if s.Status != models.StatusCancelled && !s.Status.IsTerminal() {
		s.Status = status
	}
	if errMsg != "" {
		s.Error = errMsg
	}
	if s.CompletionTime == nil {
		s.CompletionTime = &now
	}
	s.LastUpdated = now
	return *s, nil
}

// IsCancelled reports whether the session exists and is cancelled
func (t *Tracker) IsCancelled(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[id]
	return ok && e.session.Status == models.StatusCancelled
}

// GetStatus returns a copy of the session
func (t *Tracker) GetStatus(id string) (models.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[id]
	if !ok {
		return models.Session{}, false
	}
	return e.session, true
}

// Snapshot returns the session with derived progress fields
func (t *Tracker) Snapshot(id string) (models.SessionSnapshot, bool) {
	s, ok := t.GetStatus(id)
	if !ok {
		return models.SessionSnapshot{}, false
	}
	return s.Snapshot(t.now()), true
}

// List returns snapshots of all sessions, newest first
func (t *Tracker) List() []models.SessionSnapshot {
	t.mu.Lock()
	sessions := make([]models.Session, 0, len(t.sessions))
	for _, e := range t.sessions {
		sessions = append(sessions, e.session)
	}
	t.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})

	now := t.now()
	out := make([]models.SessionSnapshot, len(sessions))
	for i, s := range sessions {
		out[i] = s.Snapshot(now)
	}
	return out
}

// Sweep removes sessions not updated within maxAge and returns how many were removed
func (t *Tracker) Sweep(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-maxAge)
	removed := 0
	for id, e := range t.sessions {
		if e.session.LastUpdated.Before(cutoff) {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
