// Package main is the entry point for the ui-data server.
package main

import (
	"os"

	"github.com/zot/ui-data/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
