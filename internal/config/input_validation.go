package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxGroupNameLength bounds catalog group and parent names
	MaxGroupNameLength = 200
	// MaxModelNameLength bounds model identifiers
	MaxModelNameLength = 100
	// MaxTemplateSize bounds each prompt template
	MaxTemplateSize = 50 * 1024
)

// Difficulties double as planner rule keys and metric labels
var difficultyPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,49}$`)

// ValidateInputs checks user-controlled strings that end up in prompts,
// labels, URLs and file paths. Every problem is reported, not just the first.
func (c *Config) ValidateInputs() error {
	var errs []error

	for _, g := range c.Catalog.Groups {
		if err := checkDisplayName(g.Name); err != nil {
			errs = append(errs, fmt.Errorf("catalog.groups[%d].name: %w", g.ID, err))
		}
		if g.ParentName != "" {
			if err := checkDisplayName(g.ParentName); err != nil {
				errs = append(errs, fmt.Errorf("catalog.groups[%d].parent: %w", g.ID, err))
			}
		}
	}

	for _, d := range c.Generation.Difficulties {
		if !difficultyPattern.MatchString(d) {
			errs = append(errs, fmt.Errorf("generation.difficulties: %q must be lowercase letters, digits, '-' or '_'", d))
		}
	}

	for key, mc := range c.Models {
		errs = append(errs, checkModel(key, mc)...)
	}

	for key, tmpl := range map[string]string{
		"prompt_templates.system_prompt":         c.PromptTemplates.SystemPrompt,
		"prompt_templates.coding_generation":     c.PromptTemplates.CodingGeneration,
		"prompt_templates.non_coding_generation": c.PromptTemplates.NonCodingGeneration,
	} {
		if len(tmpl) > MaxTemplateSize {
			errs = append(errs, fmt.Errorf("%s exceeds %d bytes (got %d)", key, MaxTemplateSize, len(tmpl)))
		}
	}

	for key, dir := range map[string]string{
		"mirror.jsonl_dir":      c.Mirror.JSONLDir,
		"retrieval.content_dir": c.Retrieval.ContentDir,
		"sessions.archive_dir":  c.Sessions.ArchiveDir,
	} {
		if containsControlChars(dir) {
			errs = append(errs, fmt.Errorf("%s contains control characters", key))
		}
	}

	return errors.Join(errs...)
}

// checkDisplayName validates a name shown in prompts, labels and scope descriptions
func checkDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("must not be blank")
	}
	if len(name) > MaxGroupNameLength {
		return fmt.Errorf("exceeds %d characters (got %d)", MaxGroupNameLength, len(name))
	}
	if containsControlChars(name) {
		return fmt.Errorf("contains control characters")
	}
	return nil
}

func checkModel(key string, mc ModelConfig) []error {
	var errs []error
	if len(mc.ModelName) > MaxModelNameLength {
		errs = append(errs, fmt.Errorf("models.%s.model_name exceeds %d characters (got %d)", key, MaxModelNameLength, len(mc.ModelName)))
	}
	if containsControlChars(mc.ModelName) {
		errs = append(errs, fmt.Errorf("models.%s.model_name contains control characters", key))
	}

	u, err := url.Parse(mc.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("models.%s.base_url is invalid: %w", key, err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("models.%s.base_url must use http or https (got %q)", key, u.Scheme))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("models.%s.base_url must have a host", key))
	case u.User != nil:
		errs = append(errs, fmt.Errorf("models.%s.base_url must not embed credentials; use API_KEY", key))
	}
	return errs
}

// containsControlChars reports control characters other than tab and line breaks
func containsControlChars(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool {
		return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
	})
}
