package manifest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractSEO reads the title, meta description and canonical link from a
// rendered document. Missing elements leave their fields empty.
func ExtractSEO(html string) (SEO, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return SEO{}, err
	}
	var seo SEO
	seo.Title = strings.TrimSpace(doc.Find("head title").First().Text())
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		seo.Description = strings.TrimSpace(desc)
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		seo.Canonical = strings.TrimSpace(href)
	}
	return seo, nil
}
