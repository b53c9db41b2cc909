package main

import (
	"fmt"
	"os"

	"github.com/example/deckbot/internal/cmd"
	"github.com/example/deckbot/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "deckbot: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	root := cmd.NewRootCmd(cfg, logger)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
