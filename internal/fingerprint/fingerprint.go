// Package fingerprint computes content fingerprints for generated items and
// decides whether two question texts are near-duplicates.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultThreshold is the Jaccard similarity at or above which two texts are near-duplicates
const DefaultThreshold = 0.8

// minLengthRatio is the shorter/longer length ratio below which texts are never near-duplicates
const minLengthRatio = 0.7

const (
	essenceWords = 5
	hexLength    = 12
	punctuation  = `.,!?()[]{}";:`
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "have": {}, "has": {},
	"had": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {},
}

// Essence returns the sorted first five meaningful words of text
func Essence(text string) string {
	words := make([]string, 0, essenceWords)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, punctuation)
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		words = append(words, tok)
		if len(words) == essenceWords {
			break
		}
	}
	sort.Strings(words)
	return strings.Join(words, " ")
}

// Fingerprint returns a 12-character hex digest of the text essence,
// the sorted scope ids and the category
func Fingerprint(text string, scopeIDs []int64, category string) string {
	ids := append([]int64(nil), scopeIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}

	key := Essence(text) + "|" + strings.Join(parts, ",") + "|" + category
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:hexLength]
}

// IsNearDuplicate reports whether a and b are the same text or share at
// least threshold of their normalized word sets
func IsNearDuplicate(a, b string, threshold float64) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	// Lengths are in characters, not bytes
	shorter, longer := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	if float64(shorter)/float64(longer) < minLengthRatio {
		return false
	}

	return Jaccard(wordSet(a), wordSet(b)) >= threshold
}

// Jaccard returns |A∩B| / |A∪B|, or 0 when both sets are empty
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

var contractions = []struct{ suffix, expansion string }{
	{"n't", "not"},
	{"'re", "are"},
	{"'ll", "will"},
	{"'ve", "have"},
	{"'s", "is"},
	{"'m", "am"},
	{"'d", "would"},
}

// wordSet tokenizes on whitespace, strips punctuation and splits contractions
// so "what's" and "what is" share both words
func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(strings.ReplaceAll(tok, "’", "'"), punctuation)
		if tok == "" {
			continue
		}
		for _, c := range contractions {
			if stem, ok := strings.CutSuffix(tok, c.suffix); ok && stem != "" {
				if c.suffix == "n't" && stem == "ca" {
					stem = "can"
				}
				set[stem] = struct{}{}
				tok = c.expansion
				break
			}
		}
		set[tok] = struct{}{}
	}
	return set
}
