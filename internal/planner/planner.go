// Package planner turns a generation request into tasks with per-task quotas.
package planner

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lamim/quizforge/pkg/models"
)

const (
	// DefaultMaxGroupSize is the largest combination size considered
	DefaultMaxGroupSize = 3
	// DefaultMaxCombinations caps combinations per difficulty
	DefaultMaxCombinations = 50
)

// ErrInvalidInput is returned for plans that cannot be produced at all
var ErrInvalidInput = errors.New("invalid plan input")

// Options configures a Planner. Zero values fall back to defaults.
type Options struct {
	MaxGroupSize    int
	MaxCombinations int
	Rules           map[string]Rule
}

// Planner produces generation tasks for group-scoped and budget-scoped requests
type Planner struct {
	maxGroupSize    int
	maxCombinations int
	rules           map[string]Rule
	logger          *slog.Logger
}

// New creates a planner
func New(opts Options, logger *slog.Logger) *Planner {
	if opts.MaxGroupSize <= 0 {
		opts.MaxGroupSize = DefaultMaxGroupSize
	}
	if opts.MaxCombinations <= 0 {
		opts.MaxCombinations = DefaultMaxCombinations
	}
	rules := DefaultRules()
	for name, r := range opts.Rules {
		rules[name] = r
	}
	return &Planner{
		maxGroupSize:    opts.MaxGroupSize,
		maxCombinations: opts.MaxCombinations,
		rules:           rules,
		logger:          logger,
	}
}

// Plan enumerates group combinations per difficulty and assigns each a quota.
// Every difficulty is funded with len(groups)*quota independently of the others.
// maxGroupSize <= 0 uses the planner default.
func (p *Planner) Plan(groups []models.ScopeGroup, difficulties []string, quota, maxGroupSize int, category models.Category) ([]models.GenerationTask, error) {
	if quota < 1 {
		return nil, fmt.Errorf("%w: quota per group must be at least 1, got %d", ErrInvalidInput, quota)
	}
	if len(difficulties) == 0 {
		return nil, fmt.Errorf("%w: at least one difficulty is required", ErrInvalidInput)
	}

	groups = uniqueGroups(groups)
	size := p.effectiveGroupSize(maxGroupSize, quota)

	var tasks []models.GenerationTask
	for _, difficulty := range difficulties {
		combos := p.Combinations(groups, difficulty, size)
		if len(combos) == 0 {
			p.logger.Warn("Skipping difficulty with no combinations", "difficulty", difficulty, "groups", len(groups))
			continue
		}

		perCombo, rem := QuotaPerCombination(len(groups), quota, len(combos))
		for i, combo := range combos {
			q := perCombo
			if i < rem {
				q++
			}
			tasks = append(tasks, models.NewTask(len(tasks)+1, combo, difficulty, category, q))
		}

		counts := countBySize(combos)
		p.logger.Info("Planned difficulty",
			"difficulty", difficulty,
			"combinations", len(combos),
			"individuals", counts[1],
			"pairs", counts[2],
			"triples", counts[3],
			"quota_per_combination", perCombo,
			"remainder", rem)
	}

	return tasks, nil
}

// QuotaPerCombination spreads groups*quota over combos. It returns the floored
// share (at least 1) and how many leading combinations get one extra item,
// so the planned total never falls below the budget.
func QuotaPerCombination(groups, quota, combos int) (int, int) {
	if combos <= 0 {
		return 0, 0
	}
	budget := groups * quota
	q := budget / combos
	if q < 1 {
		return 1, 0
	}
	return q, budget % combos
}

func (p *Planner) effectiveGroupSize(requested, quota int) int {
	size := requested
	if size <= 0 {
		size = p.maxGroupSize
	}
	if quota == 1 {
		size = 1
	}
	return size
}

// Combinations returns the ordered, deduplicated group combinations for one difficulty
func (p *Planner) Combinations(groups []models.ScopeGroup, difficulty string, maxSize int) [][]models.ScopeGroup {
	if len(groups) == 0 {
		return nil
	}
	if maxSize <= 1 {
		return individuals(groups)
	}

	rule := p.ruleFor(difficulty)
	parents := byParent(groups)

	var all [][]models.ScopeGroup
	if rule.IncludeIndividuals {
		all = append(all, individuals(groups)...)
	}
	all = append(all, sameParentPairs(parents, rule.SameParentPairs)...)
	all = append(all, crossParentPairs(parents, rule.CrossParentPairs)...)
	if maxSize >= 3 && len(groups) >= 3 {
		all = append(all, triples(parents, rule)...)
	}

	combos := dedupe(all)
	if len(combos) == 0 {
		// A rule without individuals still has to cover groups that cannot pair up
		combos = individuals(groups)
	}
	return prioritize(combos, p.maxCombinations)
}

type parentGroup struct {
	id     int64
	groups []models.ScopeGroup
}

// byParent buckets groups by parent in first-appearance order
func byParent(groups []models.ScopeGroup) []parentGroup {
	index := make(map[int64]int)
	var out []parentGroup
	for _, g := range groups {
		i, ok := index[g.ParentID]
		if !ok {
			i = len(out)
			index[g.ParentID] = i
			out = append(out, parentGroup{id: g.ParentID})
		}
		out[i].groups = append(out[i].groups, g)
	}
	return out
}

func individuals(groups []models.ScopeGroup) [][]models.ScopeGroup {
	out := make([][]models.ScopeGroup, len(groups))
	for i, g := range groups {
		out[i] = []models.ScopeGroup{g}
	}
	return out
}

// sameParentPairs walks parents in order, taking pairs until limit is reached overall
func sameParentPairs(parents []parentGroup, limit int) [][]models.ScopeGroup {
	var out [][]models.ScopeGroup
	for _, pg := range parents {
		for i := 0; i < len(pg.groups); i++ {
			for j := i + 1; j < len(pg.groups); j++ {
				if len(out) >= limit {
					return out
				}
				out = append(out, []models.ScopeGroup{pg.groups[i], pg.groups[j]})
			}
		}
	}
	return out
}

func representatives(parents []parentGroup) []models.ScopeGroup {
	reps := make([]models.ScopeGroup, len(parents))
	for i, pg := range parents {
		reps[i] = pg.groups[0]
	}
	return reps
}

func crossParentPairs(parents []parentGroup, limit int) [][]models.ScopeGroup {
	if len(parents) < 2 || limit <= 0 {
		return nil
	}
	reps := representatives(parents)
	var out [][]models.ScopeGroup
	for i := 0; i < len(reps); i++ {
		for j := i + 1; j < len(reps); j++ {
			if len(out) >= limit {
				return out
			}
			out = append(out, []models.ScopeGroup{reps[i], reps[j]})
		}
	}
	return out
}

// triples adds the first triple of each large enough parent, then one cross-parent triple
func triples(parents []parentGroup, rule Rule) [][]models.ScopeGroup {
	var out [][]models.ScopeGroup
	if rule.SameParentTriples {
		for _, pg := range parents {
			if len(out) >= rule.MaxTriples {
				break
			}
			if len(pg.groups) >= 3 {
				out = append(out, []models.ScopeGroup{pg.groups[0], pg.groups[1], pg.groups[2]})
			}
		}
	}
	if rule.CrossParentTriples && len(parents) >= 3 && len(out) < rule.MaxTriples {
		reps := representatives(parents)
		out = append(out, []models.ScopeGroup{reps[0], reps[1], reps[2]})
	}
	return out
}

func dedupe(combos [][]models.ScopeGroup) [][]models.ScopeGroup {
	seen := make(map[string]struct{}, len(combos))
	out := make([][]models.ScopeGroup, 0, len(combos))
	for _, c := range combos {
		ids := make([]int64, len(c))
		for i, g := range c {
			ids[i] = g.ID
		}
		key := models.ScopeKeyString(ids)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// prioritize trims to max keeping individuals, then pairs, then triples
func prioritize(combos [][]models.ScopeGroup, max int) [][]models.ScopeGroup {
	if max <= 0 || len(combos) <= max {
		return combos
	}
	out := make([][]models.ScopeGroup, 0, max)
	for size := 1; size <= 3 && len(out) < max; size++ {
		for _, c := range combos {
			if len(c) != size {
				continue
			}
			out = append(out, c)
			if len(out) == max {
				break
			}
		}
	}
	return out
}

func uniqueGroups(groups []models.ScopeGroup) []models.ScopeGroup {
	seen := make(map[int64]struct{}, len(groups))
	out := make([]models.ScopeGroup, 0, len(groups))
	for _, g := range groups {
		if _, ok := seen[g.ID]; ok {
			continue
		}
		seen[g.ID] = struct{}{}
		out = append(out, g)
	}
	return out
}

func countBySize(combos [][]models.ScopeGroup) map[int]int {
	counts := make(map[int]int)
	for _, c := range combos {
		counts[len(c)]++
	}
	return counts
}

// Summary describes a plan for preview without running it
type Summary struct {
	TotalTasks   int                 `json:"total_tasks"`
	TotalQuota   int                 `json:"total_quota"`
	Difficulties []DifficultySummary `json:"difficulties"`
}

// DifficultySummary is the per-difficulty part of a Summary
type DifficultySummary struct {
	Difficulty          string `json:"difficulty"`
	Combinations        int    `json:"combinations"`
	Individuals         int    `json:"individuals"`
	Pairs               int    `json:"pairs"`
	Triples             int    `json:"triples"`
	QuotaPerCombination int    `json:"quota_per_combination"`
	Budget              int    `json:"budget"`
	PlannedItems        int    `json:"planned_items"`
}

// Summarize groups tasks by difficulty, in first-appearance order
func Summarize(tasks []models.GenerationTask, groups, quota int) Summary {
	var s Summary
	index := make(map[string]int)
	for _, t := range tasks {
		i, ok := index[t.Difficulty]
		if !ok {
			i = len(s.Difficulties)
			index[t.Difficulty] = i
			s.Difficulties = append(s.Difficulties, DifficultySummary{
				Difficulty:          t.Difficulty,
				QuotaPerCombination: t.Quota,
				Budget:              groups * quota,
			})
		}
		d := &s.Difficulties[i]
		d.Combinations++
		d.PlannedItems += t.Quota
		if t.Quota < d.QuotaPerCombination {
			d.QuotaPerCombination = t.Quota
		}
		switch len(t.ScopeKey) {
		case 1:
			d.Individuals++
		case 2:
			d.Pairs++
		default:
			d.Triples++
		}
		s.TotalTasks++
		s.TotalQuota += t.Quota
	}
	return s
}
