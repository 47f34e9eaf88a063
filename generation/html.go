package generation

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	leadingFence  = regexp.MustCompile("(?i)^```html?\\n?")
	trailingFence = regexp.MustCompile("(?i)\\n?```$")
)

// StripFences removes a leading ```html or ``` fence and a trailing ```
// fence, then trims surrounding whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// CleanDocument strips fences from raw model output and checks the result
// parses as a document with some content.
func CleanDocument(raw string) (string, error) {
	html := StripFences(raw)
	if html == "" {
		return "", ErrEmptyDocument
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(doc.Find("body").Text()) == "" && doc.Find("body *").Length() == 0 {
		return "", ErrEmptyDocument
	}
	return html, nil
}

// Title returns the document title, or the first heading when there is none
func Title(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1, h2").First().Text())
}
