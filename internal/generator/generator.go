// Package generator turns a scope context into raw candidate quiz items.
package generator

import (
	"context"
	"errors"

	"github.com/lamim/quizforge/pkg/models"
)

// ErrMalformedOutput is returned when a backend answers with text that holds no usable JSON
var ErrMalformedOutput = errors.New("malformed generator output")

// Request is one generation call
type Request struct {
	Task    models.GenerationTask
	Context string
	Quota   int
}

// Generator produces raw items for a request. Implementations must be safe
// for concurrent use by multiple workers.
type Generator interface {
	GenerateItems(ctx context.Context, req Request) ([]models.RawItem, error)
}
