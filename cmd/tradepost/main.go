// Package main provides the entrypoint for the tradepost CLI.
package main

import (
	"fmt"
	"os"

	"tradepost.dev/go/tradepost/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
