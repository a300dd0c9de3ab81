package formatters

import (
	"regexp"
	"strings"
)

// VK wall posts take no HTML. Emphasis becomes VK wiki-style markers and
// anchors become [text|href]; every other tag is stripped keeping inner
// text. The result never contains '<' or '>'.

var (
	reVkAnchor = regexp.MustCompile(`(?is)<a\s[^>]*href\s*=\s*["']?([^"'\s<>]+)["']?[^>]*>(.*?)</a\s*>`)
	reVkBold   = regexp.MustCompile(`(?is)<(?:b|strong)(?:\s[^>]*)?>(.*?)</(?:b|strong)\s*>`)
	reVkItalic = regexp.MustCompile(`(?is)<(?:i|em)(?:\s[^>]*)?>(.*?)</(?:i|em)\s*>`)
)

func FormatVkText(html string) string {
	s := preprocessBlocks(html)
	s = reVkAnchor.ReplaceAllString(s, "[$2|$1]")
	s = reVkBold.ReplaceAllString(s, "*$1*")
	s = reVkItalic.ReplaceAllString(s, "_${1}_")
	s = reAnyTag.ReplaceAllString(s, "")
	s = DecodeEntities(s)
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	s = reExcessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
