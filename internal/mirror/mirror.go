// Package mirror copies saved items to audit sinks. Mirroring is best-effort:
// callers log failures and never fail a task because of them.
package mirror

import (
	"context"
	"errors"

	"github.com/lamim/quizforge/pkg/models"
)

// Mirror receives a copy of every saved item
type Mirror interface {
	Mirror(ctx context.Context, item *models.Item) error
	Close() error
}

// Nop discards items
type Nop struct{}

func (Nop) Mirror(context.Context, *models.Item) error { return nil }
func (Nop) Close() error                               { return nil }

// Multi fans an item out to several mirrors
type Multi []Mirror

// Mirror writes to every sink and joins their errors
func (m Multi) Mirror(ctx context.Context, item *models.Item) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Mirror(ctx, item); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors
func (m Multi) Close() error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Record is the concise exported form of an item
type Record struct {
	ID          int64           `json:"id"`
	Fingerprint string          `json:"fingerprint"`
	SessionID   string          `json:"session_id,omitempty"`
	Category    models.Category `json:"category"`
	Difficulty  string          `json:"difficulty"`
	Groups      []string        `json:"groups"`
	Question    string          `json:"question"`
	Answer      string          `json:"answer,omitempty"`
	Explanation string          `json:"explanation"`

	FunctionName string `json:"function_name,omitempty"`
	SampleInput  string `json:"sample_input,omitempty"`
	SampleOutput string `json:"sample_output,omitempty"`
	BuggyCode    string `json:"buggy_code,omitempty"`
	CorrectCode  string `json:"correct_code,omitempty"`

	CreatedAt string `json:"created_at"`
}

// NewRecord builds the exported record for item
func NewRecord(item *models.Item) Record {
	r := Record{
		ID:          item.ID,
		Fingerprint: item.Fingerprint,
		SessionID:   item.SessionID,
		Category:    item.Category,
		Difficulty:  item.Difficulty,
		Groups:      item.GroupNames,
		Question:    item.QuestionText,
		Explanation: item.Explanation,
		CreatedAt:   item.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if item.Category == models.CategoryCoding {
		r.FunctionName = item.FunctionName
		r.SampleInput = item.SampleInput
		r.SampleOutput = item.SampleOutput
		r.BuggyCode = item.BuggyCode
		r.CorrectCode = item.CorrectCode
	} else {
		r.Answer = item.Answer
	}
	return r
}
