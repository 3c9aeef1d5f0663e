// Package htmltext converts HTML mail bodies into readable plain text.
package htmltext

import (
	"html"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Convert renders an HTML fragment as markdown-flavored text. When the
// converter rejects the input, the tag-stripping fallback is used so callers
// always get something readable back.
func Convert(htmlBody string) string {
	out, err := htmltomarkdown.ConvertString(htmlBody)
	if err != nil {
		return StripTags(htmlBody)
	}
	return strings.TrimSpace(out)
}

var (
	reScript     = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
	reComment    = regexp.MustCompile(`(?s)<!--.*?-->`)
	reHeading    = regexp.MustCompile(`(?is)<h([1-6])\b[^>]*>(.*?)</h[1-6]>`)
	reBold       = regexp.MustCompile(`(?is)<(b|strong)\b[^>]*>(.*?)</(b|strong)>`)
	reItalic     = regexp.MustCompile(`(?is)<(i|em)\b[^>]*>(.*?)</(i|em)>`)
	reLink       = regexp.MustCompile(`(?is)<a\b[^>]*href=["']?([^"'\s>]+)["']?[^>]*>(.*?)</a>`)
	reListItem   = regexp.MustCompile(`(?is)<li\b[^>]*>(.*?)</li>`)
	reBlockquote = regexp.MustCompile(`(?is)<blockquote\b[^>]*>(.*?)</blockquote>`)
	reCode       = regexp.MustCompile(`(?is)<(code|pre)\b[^>]*>(.*?)</(code|pre)>`)
	reCellEnd    = regexp.MustCompile(`(?i)</t[dh]>`)
	reRowEnd     = regexp.MustCompile(`(?i)</tr>`)
	reBreak      = regexp.MustCompile(`(?i)<br\s*/?>`)
	reParaEnd    = regexp.MustCompile(`(?i)</(p|div|ul|ol|table)>`)
	reAnyTag     = regexp.MustCompile(`(?s)<[^>]+>`)
	reBlankRuns  = regexp.MustCompile(`\n{3,}`)
	reSpaceRuns  = regexp.MustCompile(`[ \t]{2,}`)
)

// StripTags is a best-effort HTML-to-text pipeline for inputs the markdown
// converter cannot parse. Structure-bearing tags are rewritten into text
// markers before everything else is removed.
func StripTags(s string) string {
	s = reScript.ReplaceAllString(s, "")
	s = reComment.ReplaceAllString(s, "")

	s = reHeading.ReplaceAllStringFunc(s, func(m string) string {
		sub := reHeading.FindStringSubmatch(m)
		level := int(sub[1][0] - '0')
		return "\n" + strings.Repeat("#", level) + " " + sub[2] + "\n"
	})
	s = reBold.ReplaceAllString(s, "**$2**")
	s = reItalic.ReplaceAllString(s, "*$2*")
	s = reLink.ReplaceAllString(s, "[$2]($1)")
	s = reListItem.ReplaceAllString(s, "\n- $1")
	s = reBlockquote.ReplaceAllString(s, "\n> $1\n")
	s = reCode.ReplaceAllString(s, "`$2`")
	s = reCellEnd.ReplaceAllString(s, " | ")
	s = reRowEnd.ReplaceAllString(s, "\n")
	s = reBreak.ReplaceAllString(s, "\n")
	s = reParaEnd.ReplaceAllString(s, "\n\n")
	s = reAnyTag.ReplaceAllString(s, "")

	s = html.UnescapeString(s)
	s = reSpaceRuns.ReplaceAllString(s, " ")
	s = reBlankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
