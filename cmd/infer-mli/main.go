package main

import (
	"fmt"
	"os"

	"infer-mli/src/cli"
)

// runMain executes the main application logic and returns the exit code.
// Extracted so it can be exercised without exiting the test process.
func runMain() int {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	exitCode := runMain()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
