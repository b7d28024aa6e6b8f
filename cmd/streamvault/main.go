// Package main is the entry point for the streamvault application.
package main

import (
	"os"

	"github.com/streamvault/streamvault/cmd/streamvault/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
