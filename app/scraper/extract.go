package scraper

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/crdatos/hemeroteca/app/store"
	"github.com/go-shiori/go-readability"
)

// Extractor pulls an article out of an arbitrary HTML page. It serves
// as a fallback for pages where the outlet-specific selectors come
// back empty, e.g. after a site redesign.
type Extractor struct {
	parser readability.Parser
}

// NewExtractor creates new Extractor.
func NewExtractor() Extractor {
	return Extractor{parser: readability.NewParser()}
}

// Extract extracts an article from an HTML page.
func (e Extractor) Extract(rd io.Reader, u string) (store.Article, error) {
	doc, err := readability.FromReader(rd, nil)
	if err != nil {
		return store.Article{}, fmt.Errorf("parse html: %w", err)
	}

	return store.Article{
		Title:    doc.Title,
		Subtitle: doc.Excerpt,
		Body:     e.sanitize(doc.TextContent),
		Author:   doc.Byline,
		URL:      u,
		Domain:   domainOf(u),
	}, nil
}

func (e Extractor) sanitize(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	// nbsp
	s = strings.ReplaceAll(s, "\u00a0", " ")

	re := regexp.MustCompile(`\s+`)
	sanitized := re.ReplaceAllString(s, " ")

	return strings.TrimSpace(sanitized)
}
