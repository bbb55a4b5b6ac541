package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Category selects the item shape and the required-field set
type Category string

const (
	// CategoryCoding items are debugging exercises with code bodies and hidden tests
	CategoryCoding Category = "coding"
	// CategoryNonCoding items are free-form knowledge questions
	CategoryNonCoding Category = "non_coding"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	return c == CategoryCoding || c == CategoryNonCoding
}

// ScopeGroup is one topic group that generation can target
type ScopeGroup struct {
	ID         int64  `json:"id" toml:"id"`
	Name       string `json:"name" toml:"name"`
	ParentID   int64  `json:"parent_id" toml:"parent_id"`
	ParentName string `json:"parent_name" toml:"parent"`
}

// GenerationTask is one unit of planned work
type GenerationTask struct {
	ID               int          `json:"id"`
	ScopeKey         []int64      `json:"scope_key"`
	Groups           []ScopeGroup `json:"groups"`
	Difficulty       string       `json:"difficulty"`
	Category         Category     `json:"category"`
	Quota            int          `json:"quota"`
	FallbackEligible bool         `json:"fallback_eligible"`
}

// NewTask builds a task for the given groups, sorting the scope key
func NewTask(id int, groups []ScopeGroup, difficulty string, category Category, quota int) GenerationTask {
	ids := make([]int64, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return GenerationTask{
		ID:               id,
		ScopeKey:         SortedIDs(ids),
		Groups:           append([]ScopeGroup(nil), groups...),
		Difficulty:       difficulty,
		Category:         category,
		Quota:            quota,
		FallbackEligible: len(groups) > 1,
	}
}

// Label returns the group names joined for display
func (t GenerationTask) Label() string {
	names := make([]string, len(t.Groups))
	for i, g := range t.Groups {
		names[i] = g.Name
	}
	return strings.Join(names, " + ")
}

// Single returns a copy of t narrowed to one group, used for fallback attempts
func (t GenerationTask) Single(group ScopeGroup) GenerationTask {
	return NewTask(t.ID, []ScopeGroup{group}, t.Difficulty, t.Category, t.Quota)
}

// SortedIDs returns a sorted copy of ids
func SortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ScopeKeyString renders a scope key as a stable comma-separated string
func ScopeKeyString(ids []int64) string {
	sorted := SortedIDs(ids)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// RawItem is one candidate object as returned by the generation backend
type RawItem map[string]any

// Item is a validated, normalized quiz item ready for persistence
type Item struct {
	ID          int64     `json:"id,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	SessionID   string    `json:"session_id,omitempty"`
	Category    Category  `json:"category"`
	Difficulty  string    `json:"difficulty"`
	ScopeKey    []int64   `json:"scope_key"`
	GroupNames  []string  `json:"group_names"`
	CreatedAt   time.Time `json:"created_at"`

	QuestionText string `json:"question_text"`
	Answer       string `json:"answer,omitempty"`
	Explanation  string `json:"explanation"`

	BuggyQuestionText string          `json:"buggy_question_text,omitempty"`
	FunctionName      string          `json:"function_name,omitempty"`
	SampleInput       string          `json:"sample_input,omitempty"`
	SampleOutput      string          `json:"sample_output,omitempty"`
	HiddenTests       json.RawMessage `json:"hidden_tests,omitempty"`
	BuggyCode         string          `json:"buggy_code,omitempty"`
	CorrectCode       string          `json:"correct_code,omitempty"`
	BuggyCorrectCode  string          `json:"buggy_correct_code,omitempty"`
	BuggyExplanation  string          `json:"buggy_explanation,omitempty"`

	// Context is the retrieved supporting text, truncated before storage
	Context string `json:"-"`
}

// TaskErrorKind classifies a task-level failure
type TaskErrorKind string

const (
	ErrKindGenerationCall TaskErrorKind = "generation_call_failed"
	ErrKindParse          TaskErrorKind = "parse_failed"
	ErrKindNoValidItems   TaskErrorKind = "no_valid_items"
	ErrKindSave           TaskErrorKind = "save_error"
)

// TaskError is returned as a value in TaskResult, never raised through the pool
type TaskError struct {
	Kind       TaskErrorKind `json:"kind"`
	Message    string        `json:"message"`
	ItemErrors []string      `json:"item_errors,omitempty"`
}

func (e *TaskError) Error() string {
	if len(e.ItemErrors) > 0 {
		return fmt.Sprintf("%s: %s (%d item errors)", e.Kind, e.Message, len(e.ItemErrors))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// TaskResult is the outcome of running one task, including any fallback attempts
type TaskResult struct {
	Task              GenerationTask `json:"task"`
	Success           bool           `json:"success"`
	ItemsSaved        int            `json:"items_saved"`
	DuplicatesSkipped int            `json:"duplicates_skipped"`
	InvalidItems      int            `json:"invalid_items"`
	Error             *TaskError     `json:"error,omitempty"`
	Duration          time.Duration  `json:"duration"`

	// FallbackUsed is set when the task was retried per individual group.
	// SuccessfulAttempts and FailedAttempts count what the session should merge:
	// 1/0 or 0/1 for a plain task, one per fallback attempt otherwise.
	FallbackUsed       bool `json:"fallback_used"`
	SuccessfulAttempts int  `json:"successful_attempts"`
	FailedAttempts     int  `json:"failed_attempts"`
}
