// Package main provides the pg CLI.
package main

import (
	"os"

	"github.com/A-SunsetMkt-Forks/pg/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
