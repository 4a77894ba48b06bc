package extract

import "strings"

// Rule maps a lowercase keyword to a business category label.
type Rule struct {
	Keyword string `mapstructure:"keyword" json:"keyword"`
	Label   string `mapstructure:"label" json:"label"`
}

// DefaultRules is the category rule table. Order matters: the first keyword
// present in the description or title wins.
var DefaultRules = []Rule{
	{Keyword: "realtor", Label: "Real Estate"},
	{Keyword: "fitness", Label: "Fitness"},
	{Keyword: "coach", Label: "Coaching"},
	{Keyword: "agency", Label: "Agency"},
	{Keyword: "clinic", Label: "Health/Clinic"},
	{Keyword: "law", Label: "Law/Legal"},
}

// GeneralCategory is reported when no rule matches.
const GeneralCategory = "General"

// Categorize walks rules in order and returns the label of the first keyword
// found case-insensitively in either the description or the title.
func Categorize(rules []Rule, description, title string) string {
	desc := strings.ToLower(description)
	ttl := strings.ToLower(title)
	for _, r := range rules {
		kw := strings.ToLower(r.Keyword)
		if kw == "" {
			continue
		}
		if strings.Contains(desc, kw) || strings.Contains(ttl, kw) {
			return r.Label
		}
	}
	return GeneralCategory
}
