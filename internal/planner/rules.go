package planner

import "strings"

// Rule controls which group combinations a difficulty level receives
type Rule struct {
	IncludeIndividuals bool `toml:"include_individuals" json:"include_individuals"`
	SameParentPairs    int  `toml:"same_parent_pairs" json:"same_parent_pairs"`
	CrossParentPairs   int  `toml:"cross_parent_pairs" json:"cross_parent_pairs"`
	SameParentTriples  bool `toml:"same_parent_triples" json:"same_parent_triples"`
	CrossParentTriples bool `toml:"cross_parent_triples" json:"cross_parent_triples"`
	MaxTriples         int  `toml:"max_triples" json:"max_triples"`
}

// DefaultRules returns the built-in rule per difficulty level.
// Easier levels stay on single topics; harder ones mix related topics.
func DefaultRules() map[string]Rule {
	basic := Rule{IncludeIndividuals: true, SameParentPairs: 2}
	return map[string]Rule{
		"beginner": basic,
		"easy":     basic,
		"intermediate": {
			IncludeIndividuals: true,
			SameParentPairs:    3,
			CrossParentPairs:   2,
		},
		"advanced": {
			SameParentPairs:   4,
			CrossParentPairs:  3,
			SameParentTriples: true,
			MaxTriples:        2,
		},
		"master": {
			SameParentPairs:    5,
			CrossParentPairs:   4,
			SameParentTriples:  true,
			CrossParentTriples: true,
			MaxTriples:         3,
		},
	}
}

// fallbackRule applies to difficulty labels with no configured rule
const fallbackRule = "intermediate"

func (p *Planner) ruleFor(difficulty string) Rule {
	if r, ok := p.rules[strings.ToLower(difficulty)]; ok {
		return r
	}
	if r, ok := p.rules[fallbackRule]; ok {
		return r
	}
	return DefaultRules()[fallbackRule]
}
