package generator

import (
	"errors"
	"strings"
	"testing"
)

func TestParseItems(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"bare array", `[{"question_text": "a"}, {"question_text": "b"}]`, 2},
		{"markdown fenced", "```json\n[{\"question_text\": \"a\"}]\n```", 1},
		{"questions wrapper", `{"questions": [{"question_text": "a"}, {"question_text": "b"}]}`, 2},
		{"items wrapper", `{"items": [{"question_text": "a"}]}`, 1},
		{"single object with list field", `{"question_text": "a", "hidden_tests": ["x", "y"]}`, 1},
		{"think block first", "<think>maybe [1]</think>[{\"question_text\": \"a\"}]", 1},
		{"non-object elements dropped", `[{"question_text": "a"}, "stray", 3]`, 1},
		{"trailing comma repaired", `[{"question_text": "a"},]`, 1},
		{"empty array", `[]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseItems(tt.input)
			if err != nil {
				t.Fatalf("ParseItems() error = %v", err)
			}
			if len(items) != tt.want {
				t.Errorf("Expected %d items, got %d", tt.want, len(items))
			}
		})
	}
}

func TestParseItemsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"prose only", "I cannot help with that."},
		{"bare string", `"just text"`},
		{"garbage", `[{"question_text": }]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseItems(tt.input)
			if !errors.Is(err, ErrMalformedOutput) {
				t.Errorf("Expected ErrMalformedOutput, got %v", err)
			}
		})
	}
}

func TestParseItemsReportsRefusal(t *testing.T) {
	_, err := ParseItems("I’m sorry, but I can’t help with that.")
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("Expected ErrMalformedOutput, got %v", err)
	}
	if !strings.Contains(err.Error(), "model refused") {
		t.Errorf("Expected refusal in error, got %v", err)
	}
}
