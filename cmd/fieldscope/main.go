// Package main provides the fieldscope CLI.
package main

import (
	"os"

	"github.com/fieldscope-labs/fieldscope/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
