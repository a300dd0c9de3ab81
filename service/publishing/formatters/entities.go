package formatters

import "strings"

// Entity decoding runs after tag stripping and in this exact order.
// Decoding &amp; first means double-encoded entities collapse the same
// way they always have for stored legacy content.
var entityOrder = [][2]string{
	{"&amp;", "&"},
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&quot;", "\""},
	{"&#39;", "'"},
	{"&nbsp;", " "},
}

func DecodeEntities(text string) string {
	for _, pair := range entityOrder {
		text = strings.ReplaceAll(text, pair[0], pair[1])
	}
	return text
}

// DecodeSafeEntities decodes only the entities that are not structural in
// Telegram HTML. &amp;, &lt; and &gt; must stay encoded in HTML payloads.
func DecodeSafeEntities(text string) string {
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	return text
}
