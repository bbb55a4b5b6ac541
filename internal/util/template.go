package util

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
)

// Functions available inside prompt templates
var templateFuncs = template.FuncMap{
	"join":  strings.Join,
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
}

// Actions that would let a template reach outside its data
var forbiddenAction = regexp.MustCompile(`\{\{-?\s*(call|define|template|block)\b`)

// compiled templates keyed by source text
var compiled sync.Map

// RenderTemplate executes src against data. Missing keys and the
// call/define/template/block actions are errors.
func RenderTemplate(src string, data map[string]any) (string, error) {
	if m := forbiddenAction.FindStringSubmatch(src); m != nil {
		return "", fmt.Errorf("template uses forbidden action %q", m[1])
	}

	t, err := compile(src)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return sb.String(), nil
}

func compile(src string) (*template.Template, error) {
	if t, ok := compiled.Load(src); ok {
		return t.(*template.Template), nil
	}

	t, err := template.New("prompt").
		Funcs(templateFuncs).
		Option("missingkey=error").
		Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	actual, _ := compiled.LoadOrStore(src, t)
	return actual.(*template.Template), nil
}

// TruncateString cuts s to maxLen runes and marks the cut with "..."
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
