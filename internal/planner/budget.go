package planner

import (
	"fmt"

	"github.com/lamim/quizforge/pkg/models"
)

// PlanBudget splits total items for one group evenly across workers slices.
// The remainder goes to the first slices, and difficulties rotate across slices.
func (p *Planner) PlanBudget(group models.ScopeGroup, difficulties []string, total, workers int, category models.Category) ([]models.GenerationTask, error) {
	if total < 1 {
		return nil, fmt.Errorf("%w: total quota must be at least 1, got %d", ErrInvalidInput, total)
	}
	if workers < 1 {
		return nil, fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidInput, workers)
	}
	if len(difficulties) == 0 {
		return nil, fmt.Errorf("%w: at least one difficulty is required", ErrInvalidInput)
	}
	if workers > total {
		workers = total
	}

	base, rem := total/workers, total%workers
	tasks := make([]models.GenerationTask, 0, workers)
	for i := 0; i < workers; i++ {
		quota := base
		if i < rem {
			quota++
		}
		difficulty := difficulties[i%len(difficulties)]
		tasks = append(tasks, models.NewTask(i+1, []models.ScopeGroup{group}, difficulty, category, quota))
	}

	p.logger.Info("Planned budget",
		"group", group.Name,
		"total", total,
		"slices", workers,
		"base_quota", base,
		"remainder", rem)

	return tasks, nil
}
