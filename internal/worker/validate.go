package worker

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lamim/quizforge/pkg/models"
)

const nonBlank = `{"type": "string", "pattern": "\\S"}`

var codingSchema = `{
	"type": "object",
	"required": [
		"question_text", "buggy_question_text", "function_name",
		"sample_input", "sample_output", "hidden_tests",
		"buggy_code", "correct_code", "buggy_correct_code",
		"explanation", "buggy_explanation"
	],
	"properties": {
		"question_text": ` + nonBlank + `,
		"buggy_question_text": ` + nonBlank + `,
		"function_name": ` + nonBlank + `,
		"sample_input": ` + nonBlank + `,
		"sample_output": ` + nonBlank + `,
		"hidden_tests": {"type": "array", "minItems": 1},
		"buggy_code": ` + nonBlank + `,
		"correct_code": ` + nonBlank + `,
		"buggy_correct_code": ` + nonBlank + `,
		"explanation": ` + nonBlank + `,
		"buggy_explanation": ` + nonBlank + `
	}
}`

var nonCodingSchema = `{
	"type": "object",
	"required": ["question_text", "answer", "explanation"],
	"properties": {
		"question_text": ` + nonBlank + `,
		"answer": ` + nonBlank + `,
		"explanation": ` + nonBlank + `
	}
}`

// Validator checks raw items against the required-field set of their category
type Validator struct {
	schemas map[models.Category]*gojsonschema.Schema
}

// NewValidator compiles the per-category schemas
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[models.Category]*gojsonschema.Schema, 2)}
	for category, src := range map[models.Category]string{
		models.CategoryCoding:    codingSchema,
		models.CategoryNonCoding: nonCodingSchema,
	} {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", category, err)
		}
		v.schemas[category] = schema
	}
	return v, nil
}

// Validate splits items into those that pass and a reason for each rejection
func (v *Validator) Validate(category models.Category, items []models.RawItem) ([]models.RawItem, []string) {
	schema, ok := v.schemas[category]
	if !ok {
		return nil, []string{fmt.Sprintf("unknown category %q", category)}
	}

	valid := make([]models.RawItem, 0, len(items))
	var rejects []string
	for i, item := range items {
		result, err := schema.Validate(gojsonschema.NewGoLoader(item))
		if err != nil {
			rejects = append(rejects, fmt.Sprintf("item %d: %v", i, err))
			continue
		}
		if !result.Valid() {
			rejects = append(rejects, fmt.Sprintf("item %d: %s", i, describe(result.Errors())))
			continue
		}
		valid = append(valid, item)
	}
	return valid, rejects
}

func describe(errs []gojsonschema.ResultError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Field() + ": " + e.Description()
	}
	return strings.Join(parts, "; ")
}
