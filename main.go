// The main package for the leadscraper executable.
package main

import (
	"github.com/JakeFAU/lead-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
