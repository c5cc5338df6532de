package cli

import (
	"archive/zip"
	"flag"
	"fmt"
	"os"

	"github.com/zot/ui-data/internal/bundle"
)

// executable locates the running binary; tests point it elsewhere.
var executable = os.Executable

func runBundle(args []string) int {
	fs := flag.NewFlagSet("bundle", flag.ContinueOnError)
	fs.SetOutput(stderr)
	output := fs.String("o", "", "Output path for bundled binary (required)")
	source := fs.String("src", "", "Source binary to bundle (default: current executable)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	dataDir := fs.Arg(0)
	if *output == "" || dataDir == "" {
		fmt.Fprintln(stderr, "Usage: ui-data bundle [-src <binary>] -o <output> <data-dir>")
		return 1
	}

	sourcePath := *source
	if sourcePath == "" {
		var err error
		if sourcePath, err = executable(); err != nil {
			fmt.Fprintf(stderr, "Error: failed to get executable path: %v\n", err)
			return 1
		}
	}

	if err := bundle.Create(sourcePath, dataDir, *output); err != nil {
		fmt.Fprintf(stderr, "Error: failed to create bundle: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Created bundled binary: %s\n", *output)
	return 0
}

// openSelf opens the running binary's bundle, reporting failures on stderr.
func openSelf() *zip.Reader {
	exe, err := executable()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to get executable path: %v\n", err)
		return nil
	}
	z, err := bundle.Open(exe)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil
	}
	return z
}

func runExtract(args []string) int {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	z := openSelf()
	if z == nil {
		return 1
	}
	if err := bundle.Extract(z, targetDir); err != nil {
		fmt.Fprintf(stderr, "Error: failed to extract bundle: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Extracted data to: %s\n", targetDir)
	return 0
}

func runLs(args []string) int {
	z := openSelf()
	if z == nil {
		return 1
	}
	for _, f := range bundle.List(z) {
		fmt.Fprintf(stdout, "%8d  %s\n", f.Size, f.Name)
	}
	return 0
}
