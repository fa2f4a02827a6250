// Package main is the entry point for the docweave application.
package main

import (
	"os"

	"github.com/jmylchreest/docweave/cmd/docweave/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
