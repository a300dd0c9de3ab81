package formatters

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// FormatPlainText flattens HTML to plain text for platforms that accept
// none at all (Facebook feed posts, Instagram captions). Block structure
// becomes newlines, list items keep their bullets.
func FormatPlainText(html string) string {
	s := preprocessBlocks(html)
	s = strictPolicy.Sanitize(s)
	s = DecodeEntities(s)
	s = reExcessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// TruncateRunes caps text at max runes without splitting a multibyte
// character. Platform caption limits count characters, not bytes.
func TruncateRunes(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
