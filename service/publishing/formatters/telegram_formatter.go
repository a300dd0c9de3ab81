package formatters

import (
	"fmt"
	"regexp"
	"strings"

	"bitbucket.org/creachadair/stringset"
)

// Telegram accepts a narrow HTML subset. Everything else is rewritten or
// stripped while keeping the inner text.
var telegramAllowedTags = stringset.New("b", "i", "u", "s", "a", "code", "pre")

var (
	reParagraphClose = regexp.MustCompile(`(?i)</(?:p|div)\s*>`)
	reParagraphOpen  = regexp.MustCompile(`(?i)<(?:p|div)(?:\s[^>]*)?>`)
	reLineBreak      = regexp.MustCompile(`(?i)<br\s*/?>`)
	reHeadingOpen    = regexp.MustCompile(`(?i)<h[1-6](?:\s[^>]*)?>`)
	reHeadingClose   = regexp.MustCompile(`(?i)</h[1-6]\s*>`)
	reListItemOpen   = regexp.MustCompile(`(?i)<li(?:\s[^>]*)?>`)
	reListItemClose  = regexp.MustCompile(`(?i)</li\s*>`)
	reListWrap       = regexp.MustCompile(`(?i)</?(?:ul|ol)(?:\s[^>]*)?>`)
	reAnyTag         = regexp.MustCompile(`<(/?)([a-zA-Z][a-zA-Z0-9]*)((?:\s[^<>]*)?)>`)
	reHrefAttr       = regexp.MustCompile(`(?i)href\s*=\s*["']?([^"'\s<>]+)["']?`)
	reExcessNewlines = regexp.MustCompile(`\n{3,}`)
)

// FormatTelegramHtml converts arbitrary CMS HTML into the Telegram subset.
// Malformed markup never fails; stripping is best effort.
func FormatTelegramHtml(html string) string {
	s := preprocessBlocks(html)
	s = normalizeTagAliases(s)
	s = DecodeSafeEntities(s)
	s = filterTelegramTags(s)
	s = BalanceTags(s)
	s = reExcessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Block-level structure has no Telegram representation, so it becomes
// plain newlines and bullets before any tag filtering.
func preprocessBlocks(s string) string {
	s = reLineBreak.ReplaceAllString(s, "\n")
	s = reParagraphClose.ReplaceAllString(s, "\n")
	s = reParagraphOpen.ReplaceAllString(s, "")
	s = reHeadingOpen.ReplaceAllString(s, "<b>")
	s = reHeadingClose.ReplaceAllString(s, "</b>\n")
	s = reListItemOpen.ReplaceAllString(s, "• ")
	s = reListItemClose.ReplaceAllString(s, "\n")
	s = reListWrap.ReplaceAllString(s, "\n")
	return s
}

func normalizeTagAliases(s string) string {
	replacements := [][2]string{
		{"strong", "b"},
		{"em", "i"},
		{"ins", "u"},
		{"strike", "s"},
		{"del", "s"},
	}
	for _, pair := range replacements {
		reOpen := regexp.MustCompile(`(?i)<` + pair[0] + `(?:\s[^>]*)?>`)
		reClose := regexp.MustCompile(`(?i)</` + pair[0] + `\s*>`)
		s = reOpen.ReplaceAllString(s, "<"+pair[1]+">")
		s = reClose.ReplaceAllString(s, "</"+pair[1]+">")
	}
	return s
}

// filterTelegramTags keeps allow-listed tags, drops everything else while
// preserving inner text. Anchors survive only with a usable href.
func filterTelegramTags(s string) string {
	return reAnyTag.ReplaceAllStringFunc(s, func(tag string) string {
		parts := reAnyTag.FindStringSubmatch(tag)
		closing := parts[1] == "/"
		name := strings.ToLower(parts[2])
		attrs := parts[3]

		if !telegramAllowedTags.Contains(name) {
			return ""
		}
		if closing {
			return "</" + name + ">"
		}
		if name == "a" {
			href := reHrefAttr.FindStringSubmatch(attrs)
			if href == nil {
				return ""
			}
			return fmt.Sprintf(`<a href="%s">`, href[1])
		}
		return "<" + name + ">"
	})
}

// BalanceTags repairs unbalanced allow-listed markup: stray closers are
// dropped and missing closers are appended in reverse-open order.
func BalanceTags(s string) string {
	var out strings.Builder
	var open []string
	last := 0

	for _, loc := range reAnyTag.FindAllStringSubmatchIndex(s, -1) {
		tag := s[loc[0]:loc[1]]
		closing := s[loc[2]:loc[3]] == "/"
		name := strings.ToLower(s[loc[4]:loc[5]])

		out.WriteString(s[last:loc[0]])
		last = loc[1]

		if !closing {
			open = append(open, name)
			out.WriteString(tag)
			continue
		}
		if len(open) > 0 && open[len(open)-1] == name {
			open = open[:len(open)-1]
			out.WriteString(tag)
			continue
		}
		// Closer without a matching opener on top of the stack.
		idx := -1
		for i := len(open) - 1; i >= 0; i-- {
			if open[i] == name {
				idx = i
				break
			}
		}
		if idx == -1 {
			continue
		}
		for i := len(open) - 1; i >= idx; i-- {
			out.WriteString("</" + open[i] + ">")
		}
		open = open[:idx]
	}
	out.WriteString(s[last:])
	for i := len(open) - 1; i >= 0; i-- {
		out.WriteString("</" + open[i] + ">")
	}
	return out.String()
}

// StripAllTags removes every tag and decodes entities. Used as the retry
// payload when Telegram rejects the HTML.
func StripAllTags(html string) string {
	s := preprocessBlocks(html)
	s = reAnyTag.ReplaceAllString(s, "")
	s = DecodeEntities(s)
	s = reExcessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// SplitLongMessage cuts formatted Telegram HTML into parts no longer than
// limit, closing open tags at each boundary and reopening them in the
// next part. Tag balance holds for every part.
func SplitLongMessage(html string, limit int) []string {
	if limit <= 0 || len(html) <= limit {
		return []string{html}
	}

	type openTag struct {
		name string
		tag  string
	}

	var parts []string
	var current strings.Builder
	var open []openTag

	flush := func() {
		closers := ""
		for i := len(open) - 1; i >= 0; i-- {
			closers += "</" + open[i].name + ">"
		}
		part := strings.TrimSpace(current.String() + closers)
		if part != "" {
			parts = append(parts, part)
		}
		current.Reset()
		for _, t := range open {
			current.WriteString(t.tag)
		}
	}

	appendChunk := func(chunk string) {
		// Worst-case closer length for the currently open tags, plus the
		// reopened prefix a flush leaves behind.
		reserved := 0
		reopenLen := 0
		for _, t := range open {
			reserved += len(t.name) + 3
			reopenLen += len(t.tag)
		}
		for len(chunk) > 0 {
			room := limit - current.Len() - reserved
			if room <= 0 {
				// Flush only when it shrinks current; once current is
				// down to the reopened prefix, the tag overhead alone
				// exceeds the limit and flushing again cannot help.
				// Consume at least one byte so the split always
				// terminates, accepting an oversized part.
				if current.Len() > reopenLen {
					flush()
					continue
				}
				room = 1
			}
			if len(chunk) <= room {
				current.WriteString(chunk)
				return
			}
			cut := strings.LastIndexAny(chunk[:room], "\n ")
			if cut <= 0 {
				cut = room
			}
			current.WriteString(chunk[:cut])
			chunk = strings.TrimLeft(chunk[cut:], "\n ")
			flush()
		}
	}

	last := 0
	for _, loc := range reAnyTag.FindAllStringSubmatchIndex(html, -1) {
		appendChunk(html[last:loc[0]])
		tag := html[loc[0]:loc[1]]
		closing := html[loc[2]:loc[3]] == "/"
		name := strings.ToLower(html[loc[4]:loc[5]])
		last = loc[1]

		if current.Len()+len(tag) > limit {
			flush()
		}
		current.WriteString(tag)
		if closing {
			if len(open) > 0 && open[len(open)-1].name == name {
				open = open[:len(open)-1]
			}
		} else {
			open = append(open, openTag{name: name, tag: tag})
		}
	}
	appendChunk(html[last:])

	if strings.TrimSpace(current.String()) != "" {
		flush()
	}
	if len(parts) == 0 {
		parts = []string{""}
	}
	return parts
}
