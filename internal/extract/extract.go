// Package extract implements the heuristic lead field extractor. It pulls
// emails, phone numbers, social profile links, the meta description, and the
// page title out of rendered HTML, then infers a business category from a
// fixed keyword table. Extraction is pure and never fails: missing fields map
// to documented defaults.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/lead-scraper/internal/lead"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9_.+\-]+@[a-zA-Z0-9\-]+\.[a-zA-Z0-9\-.]+`)
	// Groups: international prefix, area code, exchange, line number.
	phonePattern = regexp.MustCompile(`(\+?\d{1,3}?[\s.\-]?)?(\(?\d{3}\)?[\s.\-]?)?(\d{3}[\s.\-]?)(\d{4})`)
)

// SocialDomains are the only platforms recognized as social profile links.
var SocialDomains = []string{
	"linkedin.com",
	"facebook.com",
	"instagram.com",
	"twitter.com",
}

// Extractor runs field extraction with a fixed category rule table. It holds
// no mutable state and is safe for concurrent use.
type Extractor struct {
	rules []Rule
}

// New returns an Extractor using the provided rules. A nil or empty table falls
// back to DefaultRules.
func New(rules []Rule) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kw := strings.ToLower(strings.TrimSpace(r.Keyword))
		if kw == "" {
			continue
		}
		normalized = append(normalized, Rule{Keyword: kw, Label: r.Label})
	}
	return &Extractor{rules: normalized}
}

var defaultExtractor = New(DefaultRules)

// Extract runs the default extractor over an HTML document.
func Extract(document string) lead.Fields {
	return defaultExtractor.Extract(document)
}

// Extract parses the document and returns every detected field.
func (e *Extractor) Extract(document string) lead.Fields {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		// Only reader failures surface here; a string reader never fails.
		doc = goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
	}
	return e.ExtractDocument(doc)
}

// ExtractDocument runs extraction over an already parsed document.
func (e *Extractor) ExtractDocument(doc *goquery.Document) lead.Fields {
	text := VisibleText(doc)
	description := metaDescription(doc)
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = lead.UnknownWebsite
	}
	return lead.Fields{
		Title:       title,
		Description: description,
		Emails:      findEmails(text),
		Phones:      findPhones(text),
		Socials:     findSocialLinks(doc),
		Category:    Categorize(e.rules, description, title),
	}
}

// VisibleText joins every text node outside script-like elements with single spaces.
func VisibleText(doc *goquery.Document) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func findEmails(text string) []string {
	set := newOrderedSet()
	for _, m := range emailPattern.FindAllString(text, -1) {
		set.add(m)
	}
	return set.values()
}

func findPhones(text string) []string {
	set := newOrderedSet()
	// Exchange and line groups are mandatory, so every match is non-empty.
	for _, groups := range phonePattern.FindAllStringSubmatch(text, -1) {
		set.add(strings.TrimSpace(strings.Join(groups[1:], "")))
	}
	return set.values()
}

func findSocialLinks(doc *goquery.Document) []string {
	set := newOrderedSet()
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		for _, domain := range SocialDomains {
			if strings.Contains(href, domain) {
				set.add(href)
				return
			}
		}
	})
	return set.values()
}

func metaDescription(doc *goquery.Document) string {
	var content string
	doc.Find("meta[name]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		name, _ := sel.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(name), "description") {
			return true
		}
		value, _ := sel.Attr("content")
		content = strings.TrimSpace(value)
		return false
	})
	return content
}

// orderedSet de-duplicates while remembering first-seen order so repeated
// extraction over the same document is byte-for-byte stable.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) values() []string {
	return s.items
}
