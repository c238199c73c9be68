// Package main provides the tensorcrate CLI.
package main

import (
	"os"

	"github.com/tensorcrate/tensorcrate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
