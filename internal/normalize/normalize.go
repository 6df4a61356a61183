// Package normalize prepares free-text booking comments for extraction.
package normalize

import (
	"regexp"
	"strings"
)

// tagRe matches one tag-like substring non-greedily. Unclosed tags (no '>')
// never match and pass through unchanged.
var tagRe = regexp.MustCompile(`<.*?>`)

// CleanHTML strips markup from a booking comment: every tag-like substring is
// replaced with a single space, then each literal two-space occurrence is
// collapsed to one, then the result is trimmed.
//
// The double-space collapse is a single left-to-right pass, not a fixpoint
// loop: runs of three or more spaces survive partially collapsed. Downstream
// prompt text expects exactly this shape, so do not "fix" it to a full
// whitespace collapse.
func CleanHTML(s string) string {
	out := tagRe.ReplaceAllString(s, " ")
	out = strings.ReplaceAll(out, "  ", " ")
	return strings.TrimSpace(out)
}
