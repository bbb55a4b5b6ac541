package util

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// lexer tracks whether the bytes fed to it sit inside a JSON string literal
type lexer struct {
	inString bool
	escaped  bool
}

// structural consumes c and reports whether it is outside every string.
// Quotes themselves are never structural.
func (lx *lexer) structural(c byte) bool {
	switch {
	case lx.escaped:
		lx.escaped = false
		return false
	case lx.inString && c == '\\':
		lx.escaped = true
		return false
	case c == '"':
		lx.inString = !lx.inString
		return false
	}
	return !lx.inString
}

// ExtractJSON pulls the first JSON document out of a model response.
// A fenced code block is preferred over surrounding prose, the first of [ or {
// starts the document, and a truncated document gets its missing closers.
func ExtractJSON(s string) string {
	if m := fencedBlock.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	s = s[start:]

	var lx lexer
	var open []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !lx.structural(c) {
			continue
		}
		switch c {
		case '[':
			open = append(open, ']')
		case '{':
			open = append(open, '}')
		case ']', '}':
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
			if len(open) == 0 {
				return s[:i+1]
			}
		}
	}

	// Truncated: finish the open string, drop a dangling comma, close the rest
	if lx.inString {
		s += `"`
	}
	s = strings.TrimRight(s, " \n\t\r,")
	for i := len(open) - 1; i >= 0; i-- {
		s += string(open[i])
	}
	return s
}

// RepairJSON fixes the syntax slips models commonly make:
// raw newlines inside strings, stray commas, and missing commas between strings.
func RepairJSON(s string) string {
	s = SanitizeJSON(s)

	var lx lexer
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		wasInString := lx.inString
		if !lx.structural(c) {
			b.WriteByte(c)
			// "a" "b" -> "a", "b"
			if wasInString && !lx.inString {
				if j := skipSpace(s, i+1); j < len(s) && s[j] == '"' {
					b.WriteByte(',')
				}
			}
			continue
		}
		if c == ',' {
			if j := skipSpace(s, i+1); j == len(s) || strings.IndexByte(",]}", s[j]) >= 0 {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func skipSpace(s string, i int) int {
	for i < len(s) && strings.IndexByte(" \n\t\r", s[i]) >= 0 {
		i++
	}
	return i
}

// SanitizeJSON escapes raw line breaks inside string values. CRLF becomes a single \n.
func SanitizeJSON(s string) string {
	var lx lexer
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if lx.inString && !lx.escaped && (c == '\n' || c == '\r') {
			b.WriteString(`\n`)
			if c == '\r' && i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}
		lx.structural(c)
		b.WriteByte(c)
	}
	return b.String()
}
