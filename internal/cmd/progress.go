package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/deckbot/internal/config"
	"github.com/example/deckbot/pkg/models"
)

// withApp opens the stores for one command run and closes them afterwards
func withApp(cfg config.Config, logger *slog.Logger, run func(cmd *cobra.Command, app *App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Open(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()
		return run(cmd, app, args)
	}
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newReviewCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var (
		failed bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "review <user> <deck> <card>",
		Short: "Record a review answer for a card",
		Long: `Record one answer and print the card's new level and next review time.
The answer counts as correct unless --fail is given.`,
		Args: cobra.ExactArgs(3),
		RunE: withApp(cfg, logger, func(cmd *cobra.Command, app *App, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			res, err := app.Scheduler.UpdateProgress(cmd.Context(), userID, args[1], args[2], !failed)
			app.Metrics.ObserveReview(!failed, err)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Level:       %d/%d\n", res.Level, models.MaxLevel)
			fmt.Fprintf(cmd.OutOrStdout(), "Next review: %s\n", res.NextReviewAt.Format(time.RFC3339))
			return nil
		}),
	}
	cmd.Flags().BoolVar(&failed, "fail", false, "record a failed answer")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newResetCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <user> <deck> <card>",
		Short: "Reset a card to level 0 and make it due now",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(cfg, logger, func(cmd *cobra.Command, app *App, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			if err := app.Scheduler.ResetProgress(cmd.Context(), userID, args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s/%s\n", args[1], args[2])
			return nil
		}),
	}
}

func newDueCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "due <user> <deck>",
		Short: "List the cards of a deck that are due, in deck order",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(cfg, logger, func(cmd *cobra.Command, app *App, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			due, err := app.Due.DueFromCatalog(cmd.Context(), app.Cards, userID, args[1])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), due)
			}
			cards, err := app.Cards.GetByDeck(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fronts := make(map[string]string, len(cards))
			for _, c := range cards {
				fronts[c.ID] = c.Front
			}
			for _, cardID := range due {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", cardID, fronts[cardID])
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newStatsCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show progress statistics",
	}

	deckCmd := &cobra.Command{
		Use:   "deck <user> <deck>",
		Short: "Show completion and success rate of a deck",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(cfg, logger, func(cmd *cobra.Command, app *App, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			stats, err := app.Stats.GetDeckStats(cmd.Context(), userID, args[1])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Deck:         %s\n", stats.DeckID)
			fmt.Fprintf(out, "Cards:        %d\n", stats.TotalCards)
			fmt.Fprintf(out, "Completed:    %d (%.1f%%)\n", stats.CompletedCards, stats.CompletionRate)
			fmt.Fprintf(out, "Success rate: %.1f%%\n", stats.SuccessRate)
			return nil
		}),
	}

	cardCmd := &cobra.Command{
		Use:   "card <user> <card>",
		Short: "Show level, reviews and success rate of a card",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(cfg, logger, func(cmd *cobra.Command, app *App, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			stats, err := app.Stats.GetCardStats(cmd.Context(), userID, args[1])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Level:        %d/%d\n", stats.Level, models.MaxLevel)
			fmt.Fprintf(out, "Reviews:      %d\n", stats.TotalReviews)
			fmt.Fprintf(out, "Success rate: %d%%\n", stats.SuccessRate)
			return nil
		}),
	}

	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.AddCommand(deckCmd, cardCmd)
	return cmd
}
