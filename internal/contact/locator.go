// Package contact finds the in-site contact page linked from a rendered
// document and merges its content with the landing page.
package contact

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const keyword = "contact"

// Locate returns the absolute URL of the first anchor whose href mentions
// "contact" (case-insensitive), resolved against baseURL. Relative,
// protocol-relative, and absolute hrefs resolve the same way. Reachability and
// origin are not checked.
func Locate(document, baseURL string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return "", false
	}
	return LocateDocument(doc, baseURL)
}

// LocateDocument is Locate over an already parsed document.
func LocateDocument(doc *goquery.Document, baseURL string) (string, bool) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		base = nil
	}
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if !strings.Contains(strings.ToLower(href), keyword) {
			return true
		}
		abs, ok := resolve(base, href)
		if !ok {
			return true
		}
		found = abs
		return false
	})
	return found, found != ""
}

func resolve(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	if base == nil {
		if !ref.IsAbs() {
			return "", false
		}
		return ref.String(), true
	}
	return base.ResolveReference(ref).String(), true
}

// Merge concatenates the landing page and the contact page into one document.
// Both pages' elements stay visible to the extractor; duplicates are kept.
func Merge(main, contactPage string) string {
	var b strings.Builder
	b.Grow(len(main) + len(contactPage))
	b.WriteString(main)
	b.WriteString(contactPage)
	return b.String()
}
