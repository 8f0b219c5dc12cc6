package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanText folds compatibility characters (non-breaking and full-width
// spaces, ligatures) and collapses whitespace.
func CleanText(s string) string {
	s = norm.NFKC.String(s)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
