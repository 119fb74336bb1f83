// Package textnorm canonicalizes text before it is embedded or used as a
// cache key. The embedding cache and the embedding client must derive their
// input from the same canonical form, otherwise cache keys and stored
// vectors drift apart.
package textnorm

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize collapses literal "\n" escape sequences and real line breaks
// into single spaces, squeezes the remaining whitespace, trims, and
// lowercases the result.
func Normalize(text string) string {
	t := strings.ReplaceAll(text, `\n`, " ")
	t = strings.ReplaceAll(t, "\r\n", " ")
	t = strings.ReplaceAll(t, "\n", " ")
	t = whitespaceRe.ReplaceAllString(t, " ")
	return strings.ToLower(strings.TrimSpace(t))
}
