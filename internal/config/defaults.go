package config

const (
	// DefaultCodingTemperature keeps coding output deterministic
	DefaultCodingTemperature = 0.0
	// DefaultNonCodingTemperature allows some variety in concept questions
	DefaultNonCodingTemperature = 0.5
	// DefaultGeminiModel is used when the gemini provider names no model
	DefaultGeminiModel = "gemini-1.5-flash"
)

// GetDefaultSystemPrompt returns the system prompt sent with every generation call
func GetDefaultSystemPrompt() string {
	return `You are an assessment author for a Python learning platform. You write short, unambiguous quiz items grounded in the reference material you are given. You always answer with valid JSON and nothing else.`
}

// GetDefaultCodingTemplate returns the default template for coding challenges.
// Available fields: .Context .Topics .Difficulty .Quota .Category
func GetDefaultCodingTemplate() string {
	return `You are a coding challenge designer. Use the reference context to craft tiny, action-packed Python tasks.

CONTEXT:
{{.Context}}

TOPICS: {{.Topics}}
DIFFICULTY: {{.Difficulty}}

Generate exactly {{.Quota}} challenges.

GUIDELINES:
- Keep each question_text under 12 words.
- Use verbs like Build, Fix, Transform, Calculate, Decode.
- Avoid "Write a function that...". Describe the task instead, e.g. "Reverse string".
- When several topics are listed, each challenge should combine them.
- Each object must include:
  - question_text
  - function_name
  - sample_input / sample_output
  - hidden_tests (format: "('in',),output:'out'")
  - buggy_code with a _____ placeholder
  - correct_code
  - explanation
  - buggy_question_text, buggy_correct_code and buggy_explanation describing the debugging variant

Return ONLY a valid JSON array of {{.Quota}} objects (no markdown, no additional text):
[
  {
    "question_text": "Reverse string 'hello' to 'olleh'",
    "function_name": "reverse_string",
    "sample_input": "('hello',)",
    "sample_output": "'olleh'",
    "hidden_tests": ["('world',),output:'dlrow'", "('python',),output:'nohtyp'"],
    "buggy_code": "def reverse_string(s):\n    return s[_____]",
    "correct_code": "def reverse_string(s):\n    return s[::-1]",
    "explanation": "A slice with step -1 walks the string backwards.",
    "buggy_question_text": "Fix the slice so the string is reversed",
    "buggy_correct_code": "def reverse_string(s):\n    return s[::-1]",
    "buggy_explanation": "The slice needs a negative step.",
    "difficulty": "{{.Difficulty}}"
  }
]`
}

// GetDefaultNonCodingTemplate returns the default template for concept questions.
// Available fields: .Context .Topics .Difficulty .Quota .Category
func GetDefaultNonCodingTemplate() string {
	return `You are a quiz creator for Python concepts. Use the reference context.

CONTEXT:
{{.Context}}

TOPICS: {{.Topics}}
DIFFICULTY: {{.Difficulty}}

Generate exactly {{.Quota}} concept questions.

GUIDELINES:
- Focus on keywords, syntax, or behavior
- Keep answers single words or short phrases
- Use direct questions: Spot, Identify, Predict
- When several topics are listed, each question should connect them

Return ONLY a valid JSON array of {{.Quota}} objects (no markdown, no additional text):
[
  {
    "question_text": "What keyword defines a function in Python?",
    "answer": "def",
    "explanation": "def starts a function definition.",
    "difficulty": "{{.Difficulty}}"
  }
]`
}
