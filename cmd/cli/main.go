// Package main is the entry point for the lineage CLI binary.
package main

import (
	"os"

	"catalog-lineage/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
