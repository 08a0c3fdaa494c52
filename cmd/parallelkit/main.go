// Package main provides the entry point for the parallelkit operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/randalmurphal/parallelkit/cmd/parallelkit/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
