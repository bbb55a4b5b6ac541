// Package orchestrator plans generation sessions and runs their tasks on a
// bounded pool, merging every result into the session tracker.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lamim/quizforge/internal/archive"
	"github.com/lamim/quizforge/internal/catalog"
	"github.com/lamim/quizforge/internal/config"
	"github.com/lamim/quizforge/internal/metrics"
	"github.com/lamim/quizforge/internal/planner"
	"github.com/lamim/quizforge/internal/session"
	"github.com/lamim/quizforge/pkg/models"
)

// ErrShuttingDown is returned by Start once Shutdown has begun
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// ShutdownReason is the cancel reason recorded on sessions interrupted by Shutdown
const ShutdownReason = "shutdown"

// TaskRunner executes one task. *worker.Worker implements it.
type TaskRunner interface {
	RunTask(ctx context.Context, sessionID string, task models.GenerationTask) models.TaskResult
}

// Deps are the collaborators of an Orchestrator. Archive and Metrics are optional.
type Deps struct {
	Planner *planner.Planner
	Catalog *catalog.Catalog
	Tracker *session.Tracker
	Runner  TaskRunner
	Archive *archive.Archive
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Orchestrator owns the lifecycle of every session it starts
type Orchestrator struct {
	deps     Deps
	gen      config.GenerationConfig
	validate *validator.Validate
	logger   *slog.Logger

	// Supervised background runs
	baseCtx    context.Context
	cancelBase context.CancelFunc
	runs       sync.WaitGroup
	mu         sync.Mutex
	active     map[string]struct{}
	closing    bool
}

// New creates an orchestrator. gen supplies pool sizes and default difficulties.
func New(deps Deps, gen config.GenerationConfig) (*Orchestrator, error) {
	if deps.Planner == nil || deps.Catalog == nil || deps.Tracker == nil || deps.Runner == nil {
		return nil, fmt.Errorf("orchestrator requires a planner, catalog, tracker and runner")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:       deps,
		gen:        gen,
		validate:   validator.New(),
		logger:     deps.Logger,
		baseCtx:    ctx,
		cancelBase: cancel,
		active:     make(map[string]struct{}),
	}, nil
}

// Start plans req, creates its session and runs it in the background.
// Planning errors are returned here and never create a session.
func (o *Orchestrator) Start(req Request) (string, error) {
	plan, err := o.Prepare(req)
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return "", ErrShuttingDown
	}
	id, err := o.open(plan)
	if err != nil {
		o.mu.Unlock()
		return "", err
	}
	o.active[id] = struct{}{}
	o.runs.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.runs.Done()
		defer func() {
			o.mu.Lock()
			delete(o.active, id)
			o.mu.Unlock()
		}()
		o.execute(o.baseCtx, id, plan, nil)
	}()

	return id, nil
}

// Run executes plan in the foreground and returns the final session.
// onResult, when set, is called after each task result is merged.
func (o *Orchestrator) Run(ctx context.Context, plan *Plan, onResult func(models.TaskResult)) (models.Session, error) {
	id, err := o.open(plan)
	if err != nil {
		return models.Session{}, err
	}
	return o.execute(ctx, id, plan, onResult), nil
}

// open creates the session and its worker entries, then moves it to processing
func (o *Orchestrator) open(plan *Plan) (string, error) {
	id := plan.Request.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	if _, err := o.deps.Tracker.CreateSession(id, plan.Request.Category, len(plan.Tasks), plan.ScopeDescription); err != nil {
		return "", err
	}
	if err := o.deps.Tracker.RegisterTasks(id, plan.Tasks); err != nil {
		return "", err
	}
	if _, _, err := o.deps.Tracker.UpdateStatus(id, models.SessionUpdate{Status: models.Ptr(models.StatusProcessing)}); err != nil {
		return "", err
	}

	o.logger.Info("Session started",
		"session_id", id,
		"category", plan.Request.Category,
		"mode", plan.Request.mode(),
		"tasks", len(plan.Tasks),
		"planned_items", plan.Summary.TotalQuota,
		"scope", plan.ScopeDescription)
	return id, nil
}

// execute submits tasks to the pool and finalizes the session. It never panics.
func (o *Orchestrator) execute(ctx context.Context, id string, plan *Plan, onResult func(models.TaskResult)) (final models.Session) {
	start := time.Now()
	logger := o.logger.With("session_id", id)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Session run panicked", "panic", r)
			final = o.finalize(id, fmt.Errorf("session run panicked: %v", r), start)
		}
	}()

	poolSize := o.gen.PoolSize(plan.Request.Category)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize)

	logger.Debug("Submitting tasks", "tasks", len(plan.Tasks), "pool_size", poolSize)

	submitted := 0
	for _, task := range plan.Tasks {
		if o.deps.Tracker.IsCancelled(id) {
			logger.Info("Session cancelled, stopping submissions",
				"submitted", submitted,
				"skipped", len(plan.Tasks)-submitted)
			break
		}
		if gctx.Err() != nil {
			break
		}

		submitted++
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task %d panicked: %v", task.ID, r)
				}
			}()

			// g.Go may have waited for a free slot; the session can be cancelled by now
			if o.deps.Tracker.IsCancelled(id) {
				logger.Debug("Session cancelled, task not started", "task_id", task.ID)
				return nil
			}

			o.update(id, models.SessionUpdate{
				CurrentTaskLabel:  models.Ptr(task.Label()),
				CurrentDifficulty: models.Ptr(task.Difficulty),
			})

			result := o.deps.Runner.RunTask(gctx, id, task)
			o.merge(logger, id, result)
			if onResult != nil {
				onResult(result)
			}
			return nil
		})
	}

	runErr := g.Wait()
	if runErr == nil && ctx.Err() != nil {
		o.deps.Tracker.CancelSession(id, "interrupted: "+ctx.Err().Error())
	}
	return o.finalize(id, runErr, start)
}

// merge folds one result into the session. Counters always merge; a
// cancelled session keeps its status because the update carries none.
func (o *Orchestrator) merge(logger *slog.Logger, id string, result models.TaskResult) {
	if o.deps.Tracker.IsCancelled(id) {
		logger.Debug("Merging result into cancelled session", "task_id", result.Task.ID)
	}

	prev, next, err := o.deps.Tracker.UpdateStatus(id, models.UpdateFromResult(result))
	if err != nil {
		logger.Warn("Failed to merge task result", "task_id", result.Task.ID, "error", err)
		return
	}

	changes := session.Diff(prev, next)
	if len(changes) > 0 {
		logger.Debug("Session updated", append([]any{"task_id", result.Task.ID}, session.LogAttrs(changes)...)...)
	}
}

func (o *Orchestrator) update(id string, u models.SessionUpdate) {
	if _, _, err := o.deps.Tracker.UpdateStatus(id, u); err != nil {
		o.logger.Debug("Failed to update session", "session_id", id, "error", err)
	}
}

// finalize picks the terminal status, archives the session and records metrics
func (o *Orchestrator) finalize(id string, runErr error, start time.Time) models.Session {
	status := models.StatusCompleted
	errMsg := ""

	current, _ := o.deps.Tracker.GetStatus(id)
	switch {
	case runErr != nil:
		status = models.StatusError
		errMsg = runErr.Error()
	case current.Status == models.StatusCancelled:
		status = models.StatusCancelled
	case current.FailedTasks > 0:
		status = models.StatusCompletedWithErrors
	}

	final, err := o.deps.Tracker.Finish(id, status, errMsg)
	if err != nil {
		o.logger.Error("Failed to finalize session", "session_id", id, "error", err)
		return current
	}

	o.deps.Metrics.RecordSession(string(final.Status))
	o.archive(final)

	o.logger.Info("Session finished",
		"session_id", id,
		"status", final.Status,
		"resolved", final.ResolvedTasks,
		"successful", final.SuccessfulTasks,
		"failed", final.FailedTasks,
		"items", final.TotalItemsGenerated,
		"duplicates", final.DuplicatesSkipped,
		"duration", time.Since(start))
	if final.Error != "" {
		o.logger.Error("Session failed", "session_id", id, "error", final.Error)
	}
	return final
}

func (o *Orchestrator) archive(s models.Session) {
	if o.deps.Archive == nil {
		return
	}
	workers, err := o.deps.Tracker.Workers(s.ID)
	if err != nil {
		o.logger.Warn("Failed to read workers for archive", "session_id", s.ID, "error", err)
	}
	if err := o.deps.Archive.Save(archive.NewRecord(s.Snapshot(time.Now()), workers)); err != nil {
		o.logger.Warn("Failed to archive session", "session_id", s.ID, "error", err)
	}
}

// Cancel requests cooperative cancellation. It returns false when the session
// has already finished and session.ErrSessionNotFound for unknown ids.
func (o *Orchestrator) Cancel(id, reason string) (bool, error) {
	if _, ok := o.deps.Tracker.GetStatus(id); !ok {
		return false, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	if reason == "" {
		reason = "cancelled by user"
	}
	return o.deps.Tracker.CancelSession(id, reason), nil
}

// Status returns the session snapshot
func (o *Orchestrator) Status(id string) (models.SessionSnapshot, bool) {
	return o.deps.Tracker.Snapshot(id)
}

// Workers returns the per-task entries of a session
func (o *Orchestrator) Workers(id string) ([]models.WorkerStatus, error) {
	return o.deps.Tracker.Workers(id)
}

// List returns every tracked session, newest first
func (o *Orchestrator) List() []models.SessionSnapshot {
	return o.deps.Tracker.List()
}

// Shutdown stops accepting sessions, cancels the running ones and waits for
// them to finalize. When ctx expires first, in-flight calls are aborted.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closing = true
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		o.deps.Tracker.CancelSession(id, ShutdownReason)
	}
	if len(ids) > 0 {
		o.logger.Info("Waiting for sessions to finish", "count", len(ids))
	}

	done := make(chan struct{})
	go func() {
		o.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancelBase()
		return nil
	case <-ctx.Done():
		o.cancelBase()
		<-done
		return fmt.Errorf("shutdown interrupted: %w", ctx.Err())
	}
}
