package formatters

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTelegramHtmlKeepsAllowedTags(t *testing.T) {
	input := `<p>Hello <b>world</b> and <i>everyone</i></p>`
	result := FormatTelegramHtml(input)
	assert.Equal(t, "Hello <b>world</b> and <i>everyone</i>", result)
}

func TestFormatTelegramHtmlNormalizesAliases(t *testing.T) {
	input := `<strong>bold</strong> <em>italic</em> <ins>under</ins> <strike>gone</strike> <del>also</del>`
	result := FormatTelegramHtml(input)
	assert.Equal(t, "<b>bold</b> <i>italic</i> <u>under</u> <s>gone</s> <s>also</s>", result)
}

func TestFormatTelegramHtmlHeadingsBecomeBold(t *testing.T) {
	result := FormatTelegramHtml(`<h2 class="title">News</h2><p>Body</p>`)
	assert.Equal(t, "<b>News</b>\nBody", result)
}

func TestFormatTelegramHtmlListItemsBecomeBullets(t *testing.T) {
	result := FormatTelegramHtml(`<ul><li>first</li><li>second</li></ul>`)
	assert.Contains(t, result, "• first")
	assert.Contains(t, result, "• second")
	assert.NotContains(t, result, "<li")
	assert.NotContains(t, result, "<ul")
}

func TestFormatTelegramHtmlDropsUnknownTagsKeepingText(t *testing.T) {
	result := FormatTelegramHtml(`<span style="color:red">text</span> <video>clip</video>`)
	assert.Equal(t, "text clip", result)
}

func TestFormatTelegramHtmlAnchorsNeedHref(t *testing.T) {
	result := FormatTelegramHtml(`<a href="https://example.com/x">link</a> and <a name="x">plain</a>`)
	assert.Contains(t, result, `<a href="https://example.com/x">link</a>`)
	assert.NotContains(t, result, "<a name")
	assert.Contains(t, result, "plain")
}

func TestFormatTelegramHtmlRepairsUnclosedTags(t *testing.T) {
	result := FormatTelegramHtml(`<b>bold <i>both`)
	assert.Equal(t, "<b>bold <i>both</i></b>", result)
}

func TestFormatTelegramHtmlDropsStrayClosers(t *testing.T) {
	result := FormatTelegramHtml(`text</b> more`)
	assert.Equal(t, "text more", result)
}

func TestFormatTelegramHtmlCollapsesNewlines(t *testing.T) {
	result := FormatTelegramHtml("<p>a</p><p></p><p></p><p>b</p>")
	assert.Equal(t, "a\n\nb", result)
}

func TestFormatTelegramHtmlMalformedInputDoesNotPanic(t *testing.T) {
	inputs := []string{
		"<b><b><i></b>",
		"<<<>>>",
		"<a href=>broken</a>",
		"",
		"<p",
	}
	for _, input := range inputs {
		assert.NotPanics(t, func() { FormatTelegramHtml(input) })
	}
}

func TestStripAllTagsDecodesEntities(t *testing.T) {
	result := StripAllTags(`<p>Tom &amp; Jerry &lt;3 &quot;cheese&quot;&nbsp;&#39;always&#39;</p>`)
	assert.Equal(t, `Tom & Jerry <3 "cheese" 'always'`, result)
}

func TestStripAllTagsRemovesEverything(t *testing.T) {
	result := StripAllTags(`<b>bold</b> <a href="x">link</a> <code>mono</code>`)
	assert.Equal(t, "bold link mono", result)
}

func TestBalanceTagsNested(t *testing.T) {
	result := BalanceTags("<b><i>x</b>")
	assert.Equal(t, "<b><i>x</i></b>", result)
}

func TestSplitLongMessageShortInputUntouched(t *testing.T) {
	parts := SplitLongMessage("short", 100)
	assert.Equal(t, []string{"short"}, parts)
}

func TestSplitLongMessagePartsRespectLimit(t *testing.T) {
	input := strings.Repeat("word ", 400)
	parts := SplitLongMessage(input, 300)
	assert.Greater(t, len(parts), 1)
	for _, part := range parts {
		assert.LessOrEqual(t, len(part), 300)
	}
}

func TestSplitLongMessageDeepNestingTerminates(t *testing.T) {
	// Enough nested tags that the closing-tag budget alone exceeds the
	// limit; the splitter must still finish, at worst with oversized
	// parts.
	input := FormatTelegramHtml(strings.Repeat("<b>", 1100) + "some text")
	done := make(chan []string, 1)
	go func() { done <- SplitLongMessage(input, 4096) }()
	select {
	case parts := <-done:
		assert.NotEmpty(t, parts)
	case <-time.After(5 * time.Second):
		t.Fatal("SplitLongMessage did not return")
	}
}

func TestSplitLongMessageTinyLimitTerminates(t *testing.T) {
	done := make(chan []string, 1)
	go func() { done <- SplitLongMessage("<b><i><u>text body here</u></i></b>", 10) }()
	select {
	case parts := <-done:
		assert.NotEmpty(t, parts)
		for _, part := range parts {
			assert.NotEmpty(t, part)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SplitLongMessage did not return")
	}
}

func TestSplitLongMessageKeepsTagsBalanced(t *testing.T) {
	input := "<b>" + strings.Repeat("bold text ", 60) + "</b>"
	parts := SplitLongMessage(input, 200)
	assert.Greater(t, len(parts), 1)
	for _, part := range parts {
		opens := strings.Count(part, "<b>")
		closes := strings.Count(part, "</b>")
		assert.Equal(t, opens, closes, "unbalanced part: %s", part)
	}
}
