package main

import (
	"os"

	"github.com/samutus/warframe-market-collector/cmd/wfm/commands"
)

// main is the entry point for the wfm CLI
// ⭐ SSOT: single CLI entry point: go run ./cmd/wfm [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
