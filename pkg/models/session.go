package models

import "time"

// SessionStatus is the lifecycle state of a generation session
type SessionStatus string

const (
	StatusInitializing        SessionStatus = "initializing"
	StatusProcessing          SessionStatus = "processing"
	StatusCompleted           SessionStatus = "completed"
	StatusCompletedWithErrors SessionStatus = "completed_with_errors"
	StatusCancelled           SessionStatus = "cancelled"
	StatusError               SessionStatus = "error"
)

// IsTerminal reports whether no further transitions are expected
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusCancelled, StatusError:
		return true
	}
	return false
}

// Cancellable reports whether a cancel request may act on a session in this state
func (s SessionStatus) Cancellable() bool {
	return s == StatusInitializing || s == StatusProcessing
}

// WorkerState is the state of one task slot inside a session
type WorkerState string

const (
	WorkerPending   WorkerState = "pending"
	WorkerRunning   WorkerState = "running"
	WorkerCompleted WorkerState = "completed"
	WorkerFailed    WorkerState = "failed"
	WorkerCancelled WorkerState = "cancelled"
)

// WorkerStatus tracks one task of a session for display
type WorkerStatus struct {
	TaskID      int         `json:"task_id"`
	State       WorkerState `json:"state"`
	Step        string      `json:"step"`
	Label       string      `json:"label"`
	Difficulty  string      `json:"difficulty"`
	ItemsSaved  int         `json:"items_saved"`
	Error       string      `json:"error,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
	LastUpdated time.Time   `json:"last_updated"`
}

// WorkerSummary counts worker entries by state
type WorkerSummary struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Cancelled int `json:"cancelled"`
}

// SummarizeWorkers counts ws by state
func SummarizeWorkers(ws []WorkerStatus) WorkerSummary {
	var s WorkerSummary
	for _, w := range ws {
		switch w.State {
		case WorkerRunning:
			s.Active++
		case WorkerCompleted:
			s.Completed++
		case WorkerFailed:
			s.Failed++
		case WorkerPending:
			s.Pending++
		case WorkerCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Session is the tracked state of one generation session.
// The tracker owns the canonical copy; callers receive values.
type Session struct {
	ID                  string        `json:"session_id"`
	Category            Category      `json:"category"`
	Status              SessionStatus `json:"status"`
	ScopeDescription    string        `json:"scope_description"`
	TotalTasks          int           `json:"total_tasks"`
	CompletedTasks      int           `json:"completed_tasks"`
	SuccessfulTasks     int           `json:"successful_tasks"`
	FailedTasks         int           `json:"failed_tasks"`
	ResolvedTasks       int           `json:"resolved_tasks"`
	TotalItemsGenerated int           `json:"total_items_generated"`
	DuplicatesSkipped   int           `json:"duplicates_skipped"`
	CurrentTaskLabel    string        `json:"current_task_label"`
	CurrentDifficulty   string        `json:"current_difficulty"`
	Error               string        `json:"error,omitempty"`
	CancelReason        string        `json:"cancel_reason,omitempty"`
	StartTime           time.Time     `json:"start_time"`
	LastUpdated         time.Time     `json:"last_updated_time"`
	CompletionTime      *time.Time    `json:"completion_time,omitempty"`
	CancelTime          *time.Time    `json:"cancel_time,omitempty"`
}

// SessionSnapshot is a Session plus derived progress fields
type SessionSnapshot struct {
	Session
	ProgressPercentage      float64    `json:"progress_percentage"`
	SuccessRate             float64    `json:"success_rate"`
	ElapsedSeconds          float64    `json:"elapsed_seconds"`
	EstimatedCompletionTime *time.Time `json:"estimated_completion_time,omitempty"`
}

// Snapshot derives progress fields as of now
func (s Session) Snapshot(now time.Time) SessionSnapshot {
	snap := SessionSnapshot{Session: s}
	if s.TotalTasks > 0 {
		snap.ProgressPercentage = float64(s.ResolvedTasks) / float64(s.TotalTasks) * 100
	}
	if s.CompletedTasks > 0 {
		snap.SuccessRate = float64(s.SuccessfulTasks) / float64(s.CompletedTasks) * 100
	}
	end := now
	if s.CompletionTime != nil {
		end = *s.CompletionTime
	}
	if !s.StartTime.IsZero() {
		snap.ElapsedSeconds = end.Sub(s.StartTime).Seconds()
	}
	if !s.Status.IsTerminal() && s.ResolvedTasks > 0 && s.ResolvedTasks < s.TotalTasks {
		perTask := end.Sub(s.StartTime) / time.Duration(s.ResolvedTasks)
		eta := now.Add(perTask * time.Duration(s.TotalTasks-s.ResolvedTasks))
		snap.EstimatedCompletionTime = &eta
	}
	return snap
}

// SessionUpdate is a partial update. Counter fields are deltas so concurrent
// workers merge without lost updates; pointer fields overwrite when set.
type SessionUpdate struct {
	Status            *SessionStatus
	CurrentTaskLabel  *string
	CurrentDifficulty *string
	Error             *string

	CompletedDelta  int
	ResolvedDelta   int
	SuccessfulDelta int
	FailedDelta     int
	ItemsDelta      int
	DuplicatesDelta int
}

// Ptr returns a pointer to v, for building SessionUpdate literals
func Ptr[T any](v T) *T {
	return &v
}

// UpdateFromResult converts one task outcome into counter deltas
func UpdateFromResult(r TaskResult) SessionUpdate {
	return SessionUpdate{
		CompletedDelta:  r.SuccessfulAttempts + r.FailedAttempts,
		ResolvedDelta:   1,
		SuccessfulDelta: r.SuccessfulAttempts,
		FailedDelta:     r.FailedAttempts,
		ItemsDelta:      r.ItemsSaved,
		DuplicatesDelta: r.DuplicatesSkipped,
	}
}
