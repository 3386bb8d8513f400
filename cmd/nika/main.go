// Command nika is the CLI entry point for the workflow engine: it parses
// a workflow document, runs it against either the in-process or Temporal
// engine backend, and reports the outcome with the exit codes spec §6
// names (0 success, 1 workflow failure, 2 parse/validation failure, 3
// configuration error, 130 interrupted).
package main

import (
	"fmt"
	"os"

	_ "github.com/nikahq/nika/internal/provider/anthropic"
	_ "github.com/nikahq/nika/internal/provider/bedrock"
	_ "github.com/nikahq/nika/internal/provider/openai"
)

func main() {
	os.Exit(Execute())
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		if code, ok := exitCodeFor(err); ok {
			if code != 0 {
				fmt.Fprintln(os.Stderr, err)
			}
			return code
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
