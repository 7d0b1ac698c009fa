// Package main provides the entry point for the flowd CLI.
package main

import (
	"os"

	"github.com/randalmurphal/flowd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
