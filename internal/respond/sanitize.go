package respond

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reFence     = regexp.MustCompile("```[a-zA-Z0-9]*")
	reBullet    = regexp.MustCompile(`(?m)^\s*(?:[-*•+]|\d+[.)])\s+`)
	reHeading   = regexp.MustCompile(`(?m)^\s*#+\s*`)
	reEmphasis  = regexp.MustCompile("[*_`~]+")
	reBlankRuns = regexp.MustCompile(`\n\s*\n+`)
	reSpaces    = regexp.MustCompile(`\s+`)
)

// Sanitize reduces a model reply to plain speakable text of at most max runes.
func Sanitize(s string, max int) string {
	s = reFence.ReplaceAllString(s, "")
	s = reHeading.ReplaceAllString(s, "")
	s = reBullet.ReplaceAllString(s, "")
	s = reEmphasis.ReplaceAllString(s, "")
	s = reBlankRuns.ReplaceAllStringFunc(s, func(string) string { return "\x00" })
	parts := strings.Split(s, "\x00")
	for i, p := range parts {
		p = strings.TrimSpace(reSpaces.ReplaceAllString(p, " "))
		if i < len(parts)-1 && p != "" && !endsSentence(p) {
			p += "."
		}
		parts[i] = p
	}
	s = strings.TrimSpace(strings.Join(nonEmpty(parts), " "))
	return capWords(s, max)
}

func endsSentence(s string) bool {
	r := []rune(s)
	if len(r) == 0 {
		return false
	}
	switch r[len(r)-1] {
	case '.', '!', '?', ':', ';':
		return true
	}
	return false
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// capWords cuts s to max runes on a word boundary, marking the cut with an
// ellipsis when there is room for one.
func capWords(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	limit := max - 3
	cut := limit
	for cut > 0 && !unicode.IsSpace(r[cut]) {
		cut--
	}
	out := trimCut(string(r[:cut]))
	if out == "" {
		// No usable word boundary: cut mid-word.
		out = trimCut(string(r[:limit]))
	}
	if out == "" {
		return string(r[:max])
	}
	if !endsSentence(out) {
		out += "..."
	}
	return out
}

func trimCut(s string) string {
	return strings.TrimRightFunc(s, func(c rune) bool {
		return unicode.IsSpace(c) || c == ',' || c == ';' || c == ':'
	})
}
