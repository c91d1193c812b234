// The main package for the dartsatlas-scraper executable.
package main

import (
	"github.com/JakeFAU/dartsatlas-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
