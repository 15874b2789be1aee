package scraper

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "p, li:not(:has(p)), pre, blockquote:not(:has(p)), h1, h2, h3, h4, h5, h6"

// htmlToText converts the escaped selftext_html of a post into plain text,
// one block element per line.
func htmlToText(escaped string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html.UnescapeString(escaped)))
	if err != nil {
		return ""
	}

	var lines []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			lines = append(lines, t)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.Join(lines, "\n")
}
