package lead

import "strings"

// ParseURLList splits user supplied text into URLs, one per line. Surrounding
// whitespace is trimmed and blank lines are dropped; order is preserved.
func ParseURLList(text string) []string {
	lines := strings.Split(text, "\n")
	urls := make([]string, 0, len(lines))
	for _, line := range lines {
		if u := strings.TrimSpace(line); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
