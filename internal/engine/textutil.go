package engine

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/forPelevin/gomoji"
)

var (
	urlRe       = regexp.MustCompile(`https?://[^\s]+`)
	timestampRe = regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// entityReplacer decodes the fixed set of entities upstream titles carry.
var entityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// Sanitize strips emoji, bare URLs and MM:SS / HH:MM:SS timestamps, decodes
// common HTML entities and collapses whitespace. Sanitize(Sanitize(s)) == Sanitize(s)
// for ordinary text.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	s = gomoji.RemoveEmojis(s)
	s = urlRe.ReplaceAllString(s, " ")
	s = timestampRe.ReplaceAllString(s, " ")
	for {
		d := entityReplacer.Replace(s)
		if d == s {
			break
		}
		s = d
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Ellipsis marks truncated text. It counts toward the rune limit.
const Ellipsis = "…"

// TruncateRunes caps s at limit runes including the ellipsis.
// Safe for UTF-8 (Cyrillic, CJK, emoji).
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimRight(string(r[:limit-1]), " ") + Ellipsis
}

// StripHTML returns the visible text of an HTML fragment.
func StripHTML(html string) string {
	if !strings.ContainsRune(html, '<') {
		return strings.TrimSpace(html)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(doc.Text())
}

// HTMLToMarkdown converts an HTML fragment to Markdown. Conversion errors
// fall back to plain text.
func HTMLToMarkdown(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return StripHTML(html)
	}
	return strings.TrimSpace(md)
}
