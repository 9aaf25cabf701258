// Package main provides the scripthost CLI.
//
// Usage:
//
//	scripthost [flags] <command> [args]
//
// Commands:
//
//	compile   - Compile modules and persist them to the module cache
//	run       - Load a module and call one function
//	watch     - Serve the configured modules and reload them on change
//	config    - Inspect and validate configuration files
package main

import (
	"fmt"
	"os"

	"github.com/reglet-dev/scripthost/cmd/scripthost/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
