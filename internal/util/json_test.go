package util

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fenced array",
			in:   "```json\n[{\"question_text\": \"a\"}]\n```",
			want: `[{"question_text": "a"}]`,
		},
		{
			name: "fence without language",
			in:   "```\n{\"items\": []}\n```",
			want: `{"items": []}`,
		},
		{
			name: "prose around object",
			in:   `Here you go: {"questions": [{"question_text": "a"}]} Good luck!`,
			want: `{"questions": [{"question_text": "a"}]}`,
		},
		{
			name: "object wins when it comes first",
			in:   `{"items": [1, 2], "note": "x"}`,
			want: `{"items": [1, 2], "note": "x"}`,
		},
		{
			name: "brackets inside strings",
			in:   `{"question_text": "What does a[0] return for {}?"}`,
			want: `{"question_text": "What does a[0] return for {}?"}`,
		},
		{
			name: "escaped quote inside string",
			in:   `[{"answer": "say \"hi]\""}] trailing`,
			want: `[{"answer": "say \"hi]\""}]`,
		},
		{
			name: "truncated inside string",
			in:   `[{"question_text": "x"}, {"question_text": "y`,
			want: `[{"question_text": "x"}, {"question_text": "y"}]`,
		},
		{
			name: "truncated after comma",
			in:   `[{"question_text": "x"},`,
			want: `[{"question_text": "x"}]`,
		},
		{
			name: "no json",
			in:   "  I cannot help with that.  ",
			want: "I cannot help with that.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.in); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing comma in object", `[{"answer": "4",}]`, `[{"answer": "4"}]`},
		{"trailing comma in array", `["a", "b", ]`, `["a", "b" ]`},
		{"doubled comma", `[1,,2]`, `[1,2]`},
		{"missing comma between strings", `["a" "b"]`, `["a", "b"]`},
		{"comma inside string kept", `{"q": "a,,}"}`, `{"q": "a,,}"}`},
		{"raw newline in string", "{\"q\": \"line1\nline2\"}", `{"q": "line1\nline2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RepairJSON(tt.in)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if !json.Valid([]byte(got)) {
				t.Errorf("Expected valid JSON, got %q", got)
			}
		})
	}
}

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"newline in string", "{\"code\": \"def f():\n    pass\"}", `{"code": "def f():\n    pass"}`},
		{"crlf in string", "{\"code\": \"a\r\nb\"}", `{"code": "a\nb"}`},
		{"newline between tokens kept", "{\n\"a\": 1\n}", "{\n\"a\": 1\n}"},
		{"existing escape untouched", `{"a": "x\n"}`, `{"a": "x\n"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeJSON(tt.in); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
