// Package main is the entry point for hpcctl.
// hpcctl is the terminal front end of the HPC marketplace: interactive client
// and provider consoles plus one-shot commands for scripting.
package main

import (
	"hpcmarket/cmd/cli/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
