// Package worker runs one generation task: retrieve context, generate,
// validate, deduplicate and persist.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lamim/quizforge/internal/fingerprint"
	"github.com/lamim/quizforge/internal/generator"
	"github.com/lamim/quizforge/internal/metrics"
	"github.com/lamim/quizforge/internal/mirror"
	"github.com/lamim/quizforge/internal/retrieval"
	"github.com/lamim/quizforge/internal/session"
	"github.com/lamim/quizforge/internal/store"
	"github.com/lamim/quizforge/pkg/models"
)

const (
	// DefaultRequestTimeout bounds a single generation call
	DefaultRequestTimeout = 120 * time.Second
	// DefaultDuplicateWindow is how many stored texts are compared for near-duplicates
	DefaultDuplicateWindow = 200

	maxItemErrors = 10
)

// Reporter receives per-task progress. *session.Tracker implements it.
type Reporter interface {
	UpdateWorker(sessionID string, taskID int, u session.WorkerUpdate) error
}

// Options tunes a Worker
type Options struct {
	RequestTimeout   time.Duration
	NearDupThreshold float64
	DuplicateWindow  int
}

// Deps are the collaborators a Worker needs. Mirror, Retriever, Reporter
// and Metrics are optional.
type Deps struct {
	Generator generator.Generator
	Store     store.Store
	Mirror    mirror.Mirror
	Retriever retrieval.Retriever
	Reporter  Reporter
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

// Worker executes generation tasks. It is safe for concurrent use.
type Worker struct {
	deps      Deps
	opts      Options
	validator *Validator
	now       func() time.Time
}

// New creates a Worker
func New(deps Deps, opts Options) (*Worker, error) {
	if deps.Generator == nil || deps.Store == nil {
		return nil, fmt.Errorf("worker requires a generator and a store")
	}
	if deps.Mirror == nil {
		deps.Mirror = mirror.Nop{}
	}
	if deps.Retriever == nil {
		deps.Retriever = retrieval.None{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.NearDupThreshold <= 0 {
		opts.NearDupThreshold = fingerprint.DefaultThreshold
	}
	if opts.DuplicateWindow <= 0 {
		opts.DuplicateWindow = DefaultDuplicateWindow
	}

	v, err := NewValidator()
	if err != nil {
		return nil, err
	}

	return &Worker{deps: deps, opts: opts, validator: v, now: time.Now}, nil
}

// attemptResult is the outcome of one generation call and its persistence
type attemptResult struct {
	saved      int
	duplicates int
	invalid    int
	err        *models.TaskError
}

// RunTask executes task for the session. Failures are returned in the
// result, never as a panic or error. A multi-group task that saves nothing
// is retried once per individual group with the same quota.
func (w *Worker) RunTask(ctx context.Context, sessionID string, task models.GenerationTask) models.TaskResult {
	start := w.now()
	category := string(task.Category)
	logger := w.deps.Logger.With("session_id", sessionID, "task_id", task.ID)

	w.deps.Metrics.TaskStarted(category)
	defer w.deps.Metrics.TaskFinished(category)

	w.report(sessionID, task.ID, session.WorkerUpdate{State: models.WorkerRunning, Step: "starting"})

	result := models.TaskResult{Task: task}
	first := w.attempt(ctx, logger, sessionID, task)
	result.ItemsSaved = first.saved
	result.DuplicatesSkipped = first.duplicates
	result.InvalidItems = first.invalid
	lastErr := first.err

	switch {
	case first.saved > 0:
		result.SuccessfulAttempts = 1
	case !task.FallbackEligible:
		result.FailedAttempts = 1
	default:
		logger.Info("Falling back to individual groups",
			"label", task.Label(),
			"reason", first.err.Error())
		result.FallbackUsed = true

		for _, g := range task.Groups {
			if ctx.Err() != nil {
				break
			}
			w.report(sessionID, task.ID, session.WorkerUpdate{Step: "fallback: " + g.Name})
			a := w.attempt(ctx, logger, sessionID, task.Single(g))
			result.ItemsSaved += a.saved
			result.DuplicatesSkipped += a.duplicates
			result.InvalidItems += a.invalid
			if a.saved > 0 {
				result.SuccessfulAttempts++
			} else {
				result.FailedAttempts++
				lastErr = a.err
			}
		}
		// Cancelled before any individual ran: the combined attempt is the failure
		if result.SuccessfulAttempts+result.FailedAttempts == 0 {
			result.FailedAttempts = 1
		}
	}

	result.Success = result.ItemsSaved > 0
	if !result.Success {
		result.Error = lastErr
	}
	result.Duration = w.now().Sub(start)

	outcome := "success"
	final := session.WorkerUpdate{State: models.WorkerCompleted, Step: "done"}
	if !result.Success {
		outcome = string(result.Error.Kind)
		final = session.WorkerUpdate{State: models.WorkerFailed, Step: "done", Error: result.Error.Error()}
	}
	w.report(sessionID, task.ID, final)
	w.deps.Metrics.RecordTask(category, outcome, result.Duration)

	logger.Info("Task finished",
		"label", task.Label(),
		"difficulty", task.Difficulty,
		"success", result.Success,
		"saved", result.ItemsSaved,
		"duplicates", result.DuplicatesSkipped,
		"invalid", result.InvalidItems,
		"fallback", result.FallbackUsed,
		"duration", result.Duration)

	return result
}

func (w *Worker) attempt(ctx context.Context, logger *slog.Logger, sessionID string, task models.GenerationTask) attemptResult {
	category := string(task.Category)

	w.report(sessionID, task.ID, session.WorkerUpdate{Step: "retrieving"})
	scopeContext := retrieval.BuildContext(ctx, w.deps.Retriever, task, logger)

	w.report(sessionID, task.ID, session.WorkerUpdate{Step: "generating"})
	raw, genErr := w.generate(ctx, task, scopeContext)
	if genErr != nil {
		return attemptResult{err: genErr}
	}

	w.report(sessionID, task.ID, session.WorkerUpdate{Step: "validating"})
	valid, rejects := w.validator.Validate(task.Category, raw)
	out := attemptResult{invalid: len(rejects)}
	w.deps.Metrics.AddItems(category, "invalid", len(rejects))
	if len(rejects) > 0 {
		logger.Debug("Rejected candidates", "count", len(rejects), "first", rejects[0])
	}
	if len(valid) == 0 {
		out.err = &models.TaskError{
			Kind:       models.ErrKindNoValidItems,
			Message:    fmt.Sprintf("none of %d candidates passed validation", len(raw)),
			ItemErrors: capErrors(rejects),
		}
		return out
	}

	existing, err := w.deps.Store.Texts(ctx, store.Filter{
		Category:   task.Category,
		Difficulty: task.Difficulty,
		ScopeKey:   task.ScopeKey,
		Limit:      w.opts.DuplicateWindow,
	})
	if err != nil {
		logger.Warn("Failed to load existing items, near-duplicate check limited to this batch", "error", err)
	}

	w.report(sessionID, task.ID, session.WorkerUpdate{Step: "saving"})
	var itemErrors []string
	for _, r := range valid {
		if out.saved >= task.Quota {
			break
		}

		item := buildItem(r, task, sessionID, scopeContext, w.now())

		exists, err := w.deps.Store.Exists(ctx, item.Fingerprint)
		if err != nil {
			itemErrors = append(itemErrors, fmt.Sprintf("exists check %s: %v", item.Fingerprint, err))
			continue
		}
		if exists {
			out.duplicates++
			continue
		}
		if w.nearDuplicate(item.QuestionText, existing) {
			out.duplicates++
			continue
		}

		id, err := w.deps.Store.Save(ctx, item)
		if errors.Is(err, store.ErrDuplicate) {
			out.duplicates++
			continue
		}
		if err != nil {
			itemErrors = append(itemErrors, fmt.Sprintf("save %s: %v", item.Fingerprint, err))
			continue
		}
		item.ID = id
		out.saved++
		existing = append(existing, item.QuestionText)
		w.report(sessionID, task.ID, session.WorkerUpdate{ItemsDelta: 1})

		if err := w.deps.Mirror.Mirror(ctx, item); err != nil {
			logger.Warn("Failed to mirror item", "fingerprint", item.Fingerprint, "error", err)
		}
	}

	w.deps.Metrics.AddItems(category, "saved", out.saved)
	w.deps.Metrics.AddItems(category, "duplicate", out.duplicates)

	if len(itemErrors) > 0 {
		logger.Warn("Item persistence errors", "count", len(itemErrors), "first", itemErrors[0])
	}
	if out.saved == 0 {
		if len(itemErrors) > 0 {
			out.err = &models.TaskError{
				Kind:       models.ErrKindSave,
				Message:    fmt.Sprintf("%d items failed to save", len(itemErrors)),
				ItemErrors: capErrors(itemErrors),
			}
		} else {
			out.err = &models.TaskError{
				Kind:    models.ErrKindNoValidItems,
				Message: fmt.Sprintf("all %d valid candidates were duplicates", out.duplicates),
			}
		}
	}
	return out
}

func (w *Worker) generate(ctx context.Context, task models.GenerationTask, scopeContext string) ([]models.RawItem, *models.TaskError) {
	callCtx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
	defer cancel()

	raw, err := w.deps.Generator.GenerateItems(callCtx, generator.Request{
		Task:    task,
		Context: scopeContext,
		Quota:   task.Quota,
	})
	switch {
	case err == nil:
		return raw, nil
	case errors.Is(err, generator.ErrMalformedOutput):
		return nil, &models.TaskError{Kind: models.ErrKindParse, Message: err.Error()}
	case errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, &models.TaskError{
			Kind:    models.ErrKindGenerationCall,
			Message: fmt.Sprintf("generation call timed out after %s", w.opts.RequestTimeout),
		}
	default:
		return nil, &models.TaskError{Kind: models.ErrKindGenerationCall, Message: err.Error()}
	}
}

func (w *Worker) nearDuplicate(text string, accepted []string) bool {
	for _, other := range accepted {
		if fingerprint.IsNearDuplicate(text, other, w.opts.NearDupThreshold) {
			return true
		}
	}
	return false
}

func (w *Worker) report(sessionID string, taskID int, u session.WorkerUpdate) {
	if w.deps.Reporter == nil {
		return
	}
	if err := w.deps.Reporter.UpdateWorker(sessionID, taskID, u); err != nil {
		w.deps.Logger.Debug("Failed to report worker status", "session_id", sessionID, "task_id", taskID, "error", err)
	}
}

func capErrors(errs []string) []string {
	if len(errs) > maxItemErrors {
		return errs[:maxItemErrors]
	}
	return errs
}

func buildItem(r models.RawItem, task models.GenerationTask, sessionID, scopeContext string, now time.Time) *models.Item {
	names := make([]string, len(task.Groups))
	for i, g := range task.Groups {
		names[i] = g.Name
	}

	item := &models.Item{
		SessionID:    sessionID,
		Category:     task.Category,
		Difficulty:   task.Difficulty,
		ScopeKey:     task.ScopeKey,
		GroupNames:   names,
		CreatedAt:    now.UTC(),
		QuestionText: str(r, "question_text"),
		Explanation:  str(r, "explanation"),
		Context:      scopeContext,
	}

	if task.Category == models.CategoryCoding {
		item.BuggyQuestionText = str(r, "buggy_question_text")
		item.FunctionName = str(r, "function_name")
		item.SampleInput = str(r, "sample_input")
		item.SampleOutput = str(r, "sample_output")
		item.BuggyCode = str(r, "buggy_code")
		item.CorrectCode = str(r, "correct_code")
		item.BuggyCorrectCode = str(r, "buggy_correct_code")
		item.BuggyExplanation = str(r, "buggy_explanation")
		if tests, err := json.Marshal(r["hidden_tests"]); err == nil {
			item.HiddenTests = tests
		}
	} else {
		item.Answer = str(r, "answer")
	}

	item.Fingerprint = fingerprint.Fingerprint(item.QuestionText, task.ScopeKey, string(task.Category))
	return item
}

func str(r models.RawItem, key string) string {
	s, _ := r[key].(string)
	return strings.TrimSpace(s)
}
