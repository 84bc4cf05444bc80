// Package main is the entry point for the medassist CLI.
//
// Usage:
//
//	medassist [flags] <command>
//
// Commands:
//
//	serve - Run the HTTP API server (SSE streaming)
//	ask   - One-shot question from the command line
package main

import (
	"fmt"
	"os"

	"github.com/xdh1129/medassist/cmd/medassist/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
