package session

import (
	"fmt"

	"github.com/lamim/quizforge/pkg/models"
)

// Change is one field that differs between two session values
type Change struct {
	Field string
	From  any
	To    any
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %v -> %v", c.Field, c.From, c.To)
}

// Diff lists the fields that differ from prev to next, in a fixed order.
// Callers pass both values explicitly instead of relying on shared state.
func Diff(prev, next models.Session) []Change {
	var out []Change
	add := func(field string, from, to any) {
		if from != to {
			out = append(out, Change{Field: field, From: from, To: to})
		}
	}

	add("status", prev.Status, next.Status)
	add("completed_tasks", prev.CompletedTasks, next.CompletedTasks)
	add("successful_tasks", prev.SuccessfulTasks, next.SuccessfulTasks)
	add("failed_tasks", prev.FailedTasks, next.FailedTasks)
	add("total_items_generated", prev.TotalItemsGenerated, next.TotalItemsGenerated)
	add("duplicates_skipped", prev.DuplicatesSkipped, next.DuplicatesSkipped)
	add("current_task_label", prev.CurrentTaskLabel, next.CurrentTaskLabel)
	add("current_difficulty", prev.CurrentDifficulty, next.CurrentDifficulty)
	add("error", prev.Error, next.Error)
	add("cancel_reason", prev.CancelReason, next.CancelReason)
	return out
}

// LogAttrs flattens changes into slog key/value pairs
func LogAttrs(changes []Change) []any {
	attrs := make([]any, 0, len(changes)*2)
	for _, c := range changes {
		attrs = append(attrs, c.Field, fmt.Sprintf("%v -> %v", c.From, c.To))
	}
	return attrs
}
