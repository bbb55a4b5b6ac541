package session

import (
	"fmt"
	"sort"

	"github.com/lamim/quizforge/pkg/models"
)

// RegisterTasks adds a pending worker entry for each task
func (t *Tracker) RegisterTasks(id string, tasks []models.GenerationTask) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	now := t.now()
	for _, task := range tasks {
		e.workers[task.ID] = &models.WorkerStatus{
			TaskID:      task.ID,
			State:       models.WorkerPending,
			Step:        "queued",
			Label:       task.Label(),
			Difficulty:  task.Difficulty,
			LastUpdated: now,
		}
	}
	return nil
}

// WorkerUpdate changes one worker entry. Empty fields are left alone.
type WorkerUpdate struct {
	State      models.WorkerState
	Step       string
	ItemsDelta int
	Error      string
}

// UpdateWorker applies u to the worker entry of taskID
func (t *Tracker) UpdateWorker(id string, taskID int, u WorkerUpdate) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	w, ok := e.workers[taskID]
	if !ok {
		w = &models.WorkerStatus{TaskID: taskID}
		e.workers[taskID] = w
	}

	now := t.now()
	if u.State != "" && u.State != w.State {
		if u.State == models.WorkerRunning && w.StartedAt == nil {
			w.StartedAt = &now
		}
		if u.State == models.WorkerCompleted || u.State == models.WorkerFailed || u.State == models.WorkerCancelled {
			w.FinishedAt = &now
		}
		w.State = u.State
	}
	if u.Step != "" {
		w.Step = u.Step
	}
	if u.Error != "" {
		w.Error = u.Error
	}
	w.ItemsSaved += u.ItemsDelta
	w.LastUpdated = now
	return nil
}

// Workers returns the worker entries of a session ordered by task id
func (t *Tracker) Workers(id string) ([]models.WorkerStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	out := make([]models.WorkerStatus, 0, len(e.workers))
	for _, w := range e.workers {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}
