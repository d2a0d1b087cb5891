package news

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// StripHTML returns the visible text of an HTML fragment with entities
// decoded and whitespace collapsed.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	text := s
	if strings.ContainsAny(s, "<>") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + s + "</div>"))
		if err == nil {
			// keep block boundaries as word boundaries
			doc.Find("p, br, div, li, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, sel *goquery.Selection) {
				sel.AppendHtml(" ")
			})
			text = doc.Text()
		}
	}
	// goquery already decodes entities; double-encoded feeds need one more pass
	text = html.UnescapeString(text)
	return collapseSpaces(text)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// FoldText lower-cases s and replaces everything but letters and digits
// with single spaces.
func FoldText(s string) string {
	s = strings.ToLower(s)
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b = append(b, r)
		} else {
			b = append(b, ' ')
		}
	}
	return collapseSpaces(string(b))
}

func titleFingerprint(title string) string {
	return FoldText(title)
}
