// Package locator finds transcript sentences inside rendered content and wraps
// them in highlight markup. Matching tolerates whitespace, case and &amp;
// entity differences between the labeled sentence and the rendered text.
package locator

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize decodes &amp;, collapses whitespace runs and trims.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Locate reports whether needle occurs in content after both are normalized.
func Locate(content, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	re, err := compile(n)
	if err != nil {
		return false
	}
	return re.MatchString(Normalize(content))
}

// InsertHighlight wraps the first occurrence of needle in content. The bool
// is false when nothing matched; content is then returned unchanged.
func InsertHighlight(content, needle string, wrap func(string) string) (string, bool) {
	out, n := insert(content, needle, wrap, 1)
	return out, n > 0
}

// InsertHighlightAll wraps every occurrence and returns how many were wrapped.
func InsertHighlightAll(content, needle string, wrap func(string) string) (string, int) {
	return insert(content, needle, wrap, -1)
}

// insert matches on the NFC forms of content and needle, so a sentence that
// Locate found through composition differences is also wrapped.
func insert(raw, needle string, wrap func(string) string, limit int) (string, int) {
	needle = strings.TrimSpace(norm.NFC.String(needle))
	if needle == "" || wrap == nil {
		return raw, 0
	}
	re, err := compile(needle)
	if err != nil {
		return raw, 0
	}
	content := norm.NFC.String(raw)
	tags := tagSpans(content)
	var (
		b       strings.Builder
		last    int
		wrapped int
	)
	for _, m := range re.FindAllStringIndex(content, -1) {
		if limit > 0 && wrapped >= limit {
			break
		}
		if overlapsTag(tags, m[0], m[1]) {
			continue
		}
		b.WriteString(content[last:m[0]])
		b.WriteString(wrap(content[m[0]:m[1]]))
		last = m[1]
		wrapped++
	}
	if wrapped == 0 {
		return raw, 0
	}
	b.WriteString(content[last:])
	return b.String(), wrapped
}

// compile quotes regex metacharacters and lets any whitespace run in the
// needle match one or more whitespace characters.
func compile(needle string) (*regexp.Regexp, error) {
	parts := whitespaceRun.Split(needle, -1)
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	return regexp.Compile(`(?i)` + strings.Join(quoted, `\s+`))
}

type span struct{ start, end int }

func tagSpans(content string) []span {
	var out []span
	start := -1
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '<':
			if start < 0 {
				start = i
			}
		case '>':
			if start >= 0 {
				out = append(out, span{start, i + 1})
				start = -1
			}
		}
	}
	return out
}

func overlapsTag(tags []span, start, end int) bool {
	for _, t := range tags {
		if start < t.end && t.start < end {
			return true
		}
		if t.start >= end {
			return false
		}
	}
	return false
}
