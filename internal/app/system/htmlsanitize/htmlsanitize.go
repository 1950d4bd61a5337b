// Package htmlsanitize strips markup from text that comes from third-party
// APIs before it is stored or echoed back to users.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every tag. The policy is safe for concurrent use.
var strict = bluemonday.StrictPolicy()

// PlainText removes all HTML from s and returns unescaped, trimmed text.
// Text inside script and style elements is dropped entirely.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
