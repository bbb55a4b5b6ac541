package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lamim/quizforge/internal/planner"
	"github.com/lamim/quizforge/pkg/models"
)

// ErrInvalidRequest wraps every request and planning failure that happens before a session exists
var ErrInvalidRequest = errors.New("invalid generation request")

// Scope modes
const (
	ModeGroups = "groups"
	ModeBudget = "budget"
)

// Request names what to generate
type Request struct {
	// SessionID is optional; a UUID is generated when empty
	SessionID    string          `json:"session_id,omitempty" validate:"omitempty,uuid"`
	Category     models.Category `json:"category" validate:"required,oneof=coding non_coding"`
	Mode         string          `json:"mode,omitempty" validate:"omitempty,oneof=groups budget"`
	GroupIDs     []int64         `json:"group_ids" validate:"required,min=1,max=200,dive,gt=0"`
	Difficulties []string        `json:"difficulties,omitempty" validate:"omitempty,max=10,dive,required,max=50"`

	// Group-scoped mode
	QuotaPerGroup int `json:"quota_per_group,omitempty" validate:"omitempty,min=1,max=100"`
	MaxGroupSize  int `json:"max_group_size,omitempty" validate:"omitempty,min=1,max=3"`

	// Budget-scoped mode
	TotalQuota int `json:"total_quota,omitempty" validate:"omitempty,min=1,max=10000"`
	Workers    int `json:"workers,omitempty" validate:"omitempty,min=1,max=64"`
}

func (r Request) mode() string {
	if r.Mode == "" {
		return ModeGroups
	}
	return r.Mode
}

func (o *Orchestrator) validateRequest(r Request) error {
	if err := o.validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	switch r.mode() {
	case ModeGroups:
		if r.QuotaPerGroup < 1 {
			return fmt.Errorf("%w: quota_per_group is required in groups mode", ErrInvalidRequest)
		}
	case ModeBudget:
		if len(r.GroupIDs) != 1 {
			return fmt.Errorf("%w: budget mode targets exactly one group, got %d", ErrInvalidRequest, len(r.GroupIDs))
		}
		if r.TotalQuota < 1 {
			return fmt.Errorf("%w: total_quota is required in budget mode", ErrInvalidRequest)
		}
	}
	return nil
}

// Plan is a validated request with its tasks, ready to run
type Plan struct {
	Request          Request                 `json:"request"`
	Groups           []models.ScopeGroup     `json:"groups"`
	Difficulties     []string                `json:"difficulties"`
	Tasks            []models.GenerationTask `json:"tasks"`
	Summary          planner.Summary         `json:"summary"`
	ScopeDescription string                  `json:"scope_description"`
}

// Prepare validates req, resolves its groups and plans its tasks. It has no side effects.
func (o *Orchestrator) Prepare(req Request) (*Plan, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}

	groups, err := o.deps.Catalog.Resolve(req.GroupIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	difficulties := req.Difficulties
	if len(difficulties) == 0 {
		difficulties = o.gen.Difficulties
	}

	var tasks []models.GenerationTask
	var description string
	switch req.mode() {
	case ModeBudget:
		workers := req.Workers
		if workers == 0 {
			workers = o.gen.PoolSize(req.Category)
		}
		tasks, err = o.deps.Planner.PlanBudget(groups[0], difficulties, req.TotalQuota, workers, req.Category)
		description = fmt.Sprintf("%s (budget %d) | %s", groups[0].Name, req.TotalQuota, strings.Join(difficulties, ", "))
	default:
		tasks, err = o.deps.Planner.Plan(groups, difficulties, req.QuotaPerGroup, req.MaxGroupSize, req.Category)
		description = fmt.Sprintf("%s | %s", groupNames(groups), strings.Join(difficulties, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: plan produced no tasks", ErrInvalidRequest)
	}

	quota := req.QuotaPerGroup
	if req.mode() == ModeBudget {
		quota = req.TotalQuota
	}

	return &Plan{
		Request:          req,
		Groups:           groups,
		Difficulties:     difficulties,
		Tasks:            tasks,
		Summary:          planner.Summarize(tasks, len(groups), quota),
		ScopeDescription: description,
	}, nil
}

func groupNames(groups []models.ScopeGroup) string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name
	}
	return strings.Join(names, ", ")
}
