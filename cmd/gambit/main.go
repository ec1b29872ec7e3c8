// Command gambit serves the agent arena over HTTP and plays agents against
// each other from the terminal.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
