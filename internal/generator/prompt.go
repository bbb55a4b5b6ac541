package generator

import (
	"fmt"
	"strings"

	"github.com/lamim/quizforge/internal/config"
	"github.com/lamim/quizforge/internal/util"
	"github.com/lamim/quizforge/pkg/models"
)

// Prompts holds the templates used for each category
type Prompts struct {
	System    string
	Coding    string
	NonCoding string
}

// PromptsFromConfig copies the configured templates
func PromptsFromConfig(t config.PromptTemplates) Prompts {
	return Prompts{
		System:    t.SystemPrompt,
		Coding:    t.CodingGeneration,
		NonCoding: t.NonCodingGeneration,
	}
}

// Render builds the user prompt for a request
func (p Prompts) Render(req Request) (string, error) {
	tmpl := p.NonCoding
	if req.Task.Category == models.CategoryCoding {
		tmpl = p.Coding
	}
	if tmpl == "" {
		return "", fmt.Errorf("no prompt template for category %s", req.Task.Category)
	}

	names := make([]string, len(req.Task.Groups))
	for i, g := range req.Task.Groups {
		names[i] = g.Name
	}

	return util.RenderTemplate(tmpl, map[string]any{
		"Context":    req.Context,
		"Groups":     names,
		"Topics":     strings.Join(names, " + "),
		"Difficulty": req.Task.Difficulty,
		"Quota":      req.Quota,
		"Category":   string(req.Task.Category),
	})
}
