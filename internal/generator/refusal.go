package generator

import "strings"

// Common refusal patterns from LLM responses
var refusalPatterns = []string{
	"i'm sorry, but i can't help with that",
	"i cannot help with that",
	"i can't assist with that",
	"i can't do that",
	"i'm unable to help with that",
	"i apologize, but i cannot",
	"i'm not able to assist",
	"i cannot provide",
	"i cannot generate",
	"i'm sorry, i cannot",
	"as an ai",
}

// refusalReason returns the matched pattern when text reads as a refusal
func refusalReason(text string) (string, bool) {
	textLower := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	for _, pattern := range refusalPatterns {
		if strings.Contains(textLower, pattern) {
			return pattern, true
		}
	}
	return "", false
}
