// The main package for the summaly executable.
package main

import (
	"github.com/JakeFAU/summaly-go/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
