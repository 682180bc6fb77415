// Package normalize cleans raw model output into a canonical,
// single-line, comma-separated tag string.
package normalize

import (
	"regexp"
	"strings"
)

var (
	labelPrefix   = regexp.MustCompile(`(?i)^(?:标签|labels?|tags?)\s*[:：]\s*`)
	examplePrefix = regexp.MustCompile(`(?i)^(?:例如|比如|for example|e\.g\.)\s*[:：]\s*`)
)

// quotePairs maps an opening quote glyph to its closing glyph.
var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'`':  '`',
	'“':  '”',
	'‘':  '’',
	'「':  '」',
	'『':  '』',
}

// Normalize returns the cleaned form of raw. It never fails and
// Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(raw string) string {
	out := once(raw)
	for {
		next := once(out)
		if next == out {
			return out
		}
		out = next
	}
}

// once applies a single pass: the whole text and then each line is trimmed
// and stripped of a surrounding quote pair and of label/example prefixes,
// whitespace runs collapse to one space, blank lines are dropped and the
// rest are joined with ", ".
func once(s string) string {
	s = clean(s)
	if s == "" {
		return ""
	}
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(clean(line)), " ")
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, ", ")
}

func clean(s string) string {
	s = stripQuotes(strings.TrimSpace(s))
	s = labelPrefix.ReplaceAllString(s, "")
	return examplePrefix.ReplaceAllString(s, "")
}

func stripQuotes(s string) string {
	r := []rune(s)
	if len(r) < 2 {
		return s
	}
	if closing, ok := quotePairs[r[0]]; ok && r[len(r)-1] == closing {
		return strings.TrimSpace(string(r[1 : len(r)-1]))
	}
	return s
}
