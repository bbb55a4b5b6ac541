package util

import (
	"regexp"
	"strings"
)

var (
	reasoningBlock = regexp.MustCompile(`(?is)<(?:think|thinking|reasoning|思考)>.*?</(?:think|thinking|reasoning|思考)>`)
	// Some chat templates drop the opening tag and only emit the closer
	danglingClose = regexp.MustCompile(`(?is)^.*</(?:think|thinking|reasoning|思考)>`)
)

// StripReasoning removes a reasoning model's scratchpad so stray brackets in
// it never reach JSON extraction
func StripReasoning(response string) string {
	out := reasoningBlock.ReplaceAllString(response, "")
	out = danglingClose.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
