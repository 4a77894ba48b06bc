package lead

import (
	"fmt"
	"strings"
)

// Status marks whether a Record was produced from a rendered page or from a failure.
type Status string

// Record status values.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Defaults reported when a field has no match.
const (
	NoEmails       = "No emails"
	NoNumbers      = "No numbers"
	NoSocialLinks  = "None found"
	UnknownWebsite = "Unknown Website"
	GeneralType    = "General"
)

// Placeholders used by error records.
const (
	ErrorWebsite     = "Error"
	ErrorPlaceholder = "-"
)

// Headers lists the exported column names in output order.
var Headers = []string{
	"URL",
	"Website Name",
	"Description",
	"Emails",
	"Phone Numbers",
	"Social Links",
	"Business Type",
}

// Fields is the output of the field extractor for one document.
type Fields struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Emails      []string `json:"emails"`
	Phones      []string `json:"phones"`
	Socials     []string `json:"socials"`
	Category    string   `json:"category"`
}

// Record is one Lead Record. Records are values and are never mutated after
// construction by the pipeline.
type Record struct {
	URL          string `json:"url"`
	WebsiteName  string `json:"website_name"`
	Description  string `json:"description"`
	Emails       string `json:"emails"`
	PhoneNumbers string `json:"phone_numbers"`
	SocialLinks  string `json:"social_links"`
	BusinessType string `json:"business_type"`
	Status       Status `json:"status"`
}

// NewRecord assembles a successful Record from extracted fields.
func NewRecord(url string, f Fields) Record {
	title := strings.TrimSpace(f.Title)
	if title == "" {
		title = UnknownWebsite
	}
	category := f.Category
	if category == "" {
		category = GeneralType
	}
	return Record{
		URL:          url,
		WebsiteName:  title,
		Description:  f.Description,
		Emails:       joinOr(f.Emails, NoEmails),
		PhoneNumbers: joinOr(f.Phones, NoNumbers),
		SocialLinks:  joinOr(f.Socials, NoSocialLinks),
		BusinessType: category,
		Status:       StatusOK,
	}
}

// ErrorRecord builds the placeholder Record reported when a URL could not be rendered.
// The failure message is carried verbatim in the Emails column.
func ErrorRecord(url string, err error) Record {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Record{
		URL:          url,
		WebsiteName:  ErrorWebsite,
		Description:  ErrorPlaceholder,
		Emails:       fmt.Sprintf("Error: %s", msg),
		PhoneNumbers: ErrorPlaceholder,
		SocialLinks:  ErrorPlaceholder,
		BusinessType: ErrorPlaceholder,
		Status:       StatusError,
	}
}

// Failed reports whether the record describes a failed render.
func (r Record) Failed() bool {
	return r.Status == StatusError
}

// Columns returns the record values aligned with Headers.
func (r Record) Columns() []string {
	return []string{
		r.URL,
		r.WebsiteName,
		r.Description,
		r.Emails,
		r.PhoneNumbers,
		r.SocialLinks,
		r.BusinessType,
	}
}

// Job is one unit of dispatcher work. Index is the input position used to
// restore ordering; it never reaches the renderer or the extractor.
type Job struct {
	Index int
	URL   string
}

func joinOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}
