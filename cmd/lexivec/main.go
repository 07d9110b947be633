// Package main provides the entry point for the lexivec CLI.
package main

import (
	"os"

	"github.com/lexivec/lexivec/cmd/lexivec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
