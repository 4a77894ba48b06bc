package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lead-scraper/internal/lead"
)

const samplePage = `<!doctype html>
<html>
<head>
  <title>  Summit Fitness Studio </title>
  <meta name="description" content="  Group fitness classes and personal coaching.  ">
</head>
<body>
  <h1>Welcome</h1>
  <p>Email hello@summitfit.example or frontdesk@summitfit.example</p>
  <p>Questions? hello@summitfit.example</p>
  <p>Call (555) 123-4567 or +1 555.987.6543</p>
  <a href="https://www.linkedin.com/company/summit">LinkedIn</a>
  <a href="https://facebook.com/summitfit">Facebook</a>
  <a href="https://facebook.com/summitfit">Facebook again</a>
  <a href="https://www.youtube.com/summitfit">YouTube</a>
  <a href="/contact-us">Contact</a>
  <script>var leaked = "hidden@tracker.example";</script>
</body>
</html>`

func TestExtractFindsAllFields(t *testing.T) {
	t.Parallel()

	fields := Extract(samplePage)

	require.Equal(t, "Summit Fitness Studio", fields.Title)
	require.Equal(t, "Group fitness classes and personal coaching.", fields.Description)
	require.Equal(t, []string{"hello@summitfit.example", "frontdesk@summitfit.example"}, fields.Emails)
	require.Equal(t, []string{"(555) 123-4567", "+1 555.987.6543"}, fields.Phones)
	require.Equal(t, []string{
		"https://www.linkedin.com/company/summit",
		"https://facebook.com/summitfit",
	}, fields.Socials)
	require.Equal(t, "Fitness", fields.Category)
}

func TestExtractIsIdempotent(t *testing.T) {
	t.Parallel()

	require.Equal(t, Extract(samplePage), Extract(samplePage))
}

func TestExtractDeduplicatesEmails(t *testing.T) {
	t.Parallel()

	doc := `<html><body>
<p>jane@example.com</p><p>jane@example.com</p><div>write to jane@example.com today</div>
</body></html>`
	rec := lead.NewRecord("https://example.com", Extract(doc))
	require.Equal(t, "jane@example.com", rec.Emails)
}

func TestExtractNoMatchDefaults(t *testing.T) {
	t.Parallel()

	doc := `<html><head><title>   </title></head><body><p>Nothing to see here.</p></body></html>`
	fields := Extract(doc)
	require.Equal(t, lead.UnknownWebsite, fields.Title)
	require.Empty(t, fields.Description)
	require.Empty(t, fields.Emails)
	require.Empty(t, fields.Phones)
	require.Empty(t, fields.Socials)
	require.Equal(t, GeneralCategory, fields.Category)

	rec := lead.NewRecord("https://example.com", fields)
	require.Equal(t, "No emails", rec.Emails)
	require.Equal(t, "No numbers", rec.PhoneNumbers)
	require.Equal(t, "None found", rec.SocialLinks)
	require.Equal(t, "Unknown Website", rec.WebsiteName)
	require.Equal(t, "General", rec.BusinessType)
}

func TestExtractMissingTitle(t *testing.T) {
	t.Parallel()

	fields := Extract(`<p>plain fragment</p>`)
	require.Equal(t, lead.UnknownWebsite, fields.Title)
}

func TestExtractIgnoresScriptText(t *testing.T) {
	t.Parallel()

	fields := Extract(`<html><body><script>x="hidden@example.com"</script><style>.a{}</style></body></html>`)
	require.Empty(t, fields.Emails)
}

func TestExtractUsesFirstDescriptionMeta(t *testing.T) {
	t.Parallel()

	doc := `<html><head>
<meta name="viewport" content="width=device-width">
<meta name="Description" content=" first ">
<meta name="description" content="second">
</head></html>`
	require.Equal(t, "first", Extract(doc).Description)
}

func TestExtractSocialLinksOnlyKnownPlatforms(t *testing.T) {
	t.Parallel()

	doc := `<a href="https://instagram.com/acme">ig</a>
<a href="https://twitter.com/acme">tw</a>
<a href="https://x.com/acme">x</a>
<a href="https://tiktok.com/@acme">tt</a>`
	require.Equal(t, []string{"https://instagram.com/acme", "https://twitter.com/acme"}, Extract(doc).Socials)
}

func TestExtractPhoneDeduplicates(t *testing.T) {
	t.Parallel()

	doc := `<p>555-123-4567</p><p>555-123-4567</p>`
	require.Equal(t, []string{"555-123-4567"}, Extract(doc).Phones)
}

func TestExtractCategoryFromTitle(t *testing.T) {
	t.Parallel()

	doc := `<html><head><title>Downtown Realtor Group</title></head></html>`
	require.Equal(t, "Real Estate", Extract(doc).Category)
}

func TestCategorizeRuleOrderWins(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Fitness", Categorize(DefaultRules, "law firm and fitness class", ""))
	require.Equal(t, "Law/Legal", Categorize(DefaultRules, "Family LAW practice", ""))
	require.Equal(t, "Health/Clinic", Categorize(DefaultRules, "", "Smile Dental Clinic"))
	require.Equal(t, GeneralCategory, Categorize(DefaultRules, "bakery", "Fresh Bread"))
}

func TestNewWithCustomRules(t *testing.T) {
	t.Parallel()

	e := New([]Rule{{Keyword: " Bakery ", Label: "Food"}, {Keyword: "", Label: "ignored"}})
	fields := e.Extract(`<html><head><title>Corner bakery</title></head></html>`)
	require.Equal(t, "Food", fields.Category)

	fallback := New(nil)
	require.Equal(t, DefaultRules, fallback.rules)
}

func TestExtractPhoneWithoutAreaCode(t *testing.T) {
	t.Parallel()

	doc := `<html><body><p>Front desk: 123-4567 (ask for Sam)</p></body></html>`
	require.Equal(t, []string{"123-4567"}, Extract(doc).Phones)
}
