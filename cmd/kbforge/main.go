// Package main provides the kbforge CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/kbforge/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
