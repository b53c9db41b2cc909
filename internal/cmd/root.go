// Package cmd holds the deckbot command line.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/deckbot/internal/config"
)

// NewRootCmd creates the root command for deckbot.
// Each subcommand opens the stores it needs when it runs.
func NewRootCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "deckbot",
		Short: "Spaced-repetition flashcards over Telegram and HTTP",
		Long: `deckbot schedules flashcard reviews on a fixed ladder of levels.

Each correct answer moves a card one level up and pushes its next review
further away; a wrong answer moves it two levels down.

Use "serve" to run the bot, the HTTP API and the reminders, or the other
commands to inspect and change progress from the shell.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd(cfg, logger))
	root.AddCommand(newReviewCmd(cfg, logger))
	root.AddCommand(newResetCmd(cfg, logger))
	root.AddCommand(newDueCmd(cfg, logger))
	root.AddCommand(newStatsCmd(cfg, logger))
	return root
}
