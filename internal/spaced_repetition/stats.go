package spaced_repetition

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/example/deckbot/pkg/models"
)

// overviewConcurrency bounds parallel deck queries in GetOverview
const overviewConcurrency = 4

// StatsAggregator reduces progress records to card and deck statistics.
// All success and completion rates in the module are computed here.
type StatsAggregator struct {
	store ProgressStore
	opts  options
}

// NewStatsAggregator creates an aggregator over a store
func NewStatsAggregator(store ProgressStore, opts ...Option) *StatsAggregator {
	return &StatsAggregator{store: store, opts: buildOptions(opts)}
}

// GetCardStats returns level, review count and rounded success rate of a card.
// When the card id appears in several decks the most recently reviewed record wins.
func (a *StatsAggregator) GetCardStats(ctx context.Context, userID int64, cardID string) (models.CardStats, error) {
	if err := ValidateUserID(userID); err != nil {
		return models.CardStats{}, err
	}
	if err := ValidateID("card", cardID); err != nil {
		return models.CardStats{}, err
	}

	records, err := a.store.QueryByCard(ctx, userID, cardID)
	if err != nil {
		return models.CardStats{}, storeError("get card stats", err)
	}
	if len(records) == 0 {
		return SummarizeCard(models.NewCardProgress(models.ProgressKey{UserID: userID, CardID: cardID})), nil
	}

	latest := records[0]
	for _, p := range records[1:] {
		if reviewedAfter(p, latest) {
			latest = p
		}
	}
	return SummarizeCard(latest), nil
}

// GetDeckStats aggregates all progress records of a deck
func (a *StatsAggregator) GetDeckStats(ctx context.Context, userID int64, deckID string) (models.DeckStats, error) {
	if err := ValidateUserID(userID); err != nil {
		return models.DeckStats{}, err
	}
	if err := ValidateID("deck", deckID); err != nil {
		return models.DeckStats{}, err
	}

	records, err := a.store.QueryByDeck(ctx, userID, deckID)
	if err != nil {
		return models.DeckStats{}, storeError("get deck stats", err)
	}
	stats := SummarizeDeck(records)
	stats.DeckID = deckID
	return stats, nil
}

// GetOverview computes deck stats for several decks concurrently, in the order given
func (a *StatsAggregator) GetOverview(ctx context.Context, userID int64, deckIDs []string) ([]models.DeckStats, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	for _, id := range deckIDs {
		if err := ValidateID("deck", id); err != nil {
			return nil, err
		}
	}

	out := make([]models.DeckStats, len(deckIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewConcurrency)
	for i, deckID := range deckIDs {
		i, deckID := i, deckID
		g.Go(func() error {
			stats, err := a.GetDeckStats(gctx, userID, deckID)
			if err != nil {
				return err
			}
			out[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SummarizeCard builds card stats from a single record
func SummarizeCard(p models.CardProgress) models.CardStats {
	return models.CardStats{
		Level:        p.Level,
		TotalReviews: p.TotalReviews,
		SuccessRate:  roundedPercent(p.SuccessfulReviews, p.TotalReviews),
	}
}

// SummarizeDeck reduces the records of one deck.
// SuccessRate is Σsuccessful/Σtotal, weighting each card by how often it was reviewed.
func SummarizeDeck(records []models.CardProgress) models.DeckStats {
	var stats models.DeckStats
	var total, successful int
	for _, p := range records {
		stats.TotalCards++
		if p.IsMastered() {
			stats.CompletedCards++
		}
		total += p.TotalReviews
		successful += p.SuccessfulReviews
	}
	if stats.TotalCards > 0 {
		stats.CompletionRate = float64(stats.CompletedCards) / float64(stats.TotalCards) * 100
	}
	if total > 0 {
		stats.SuccessRate = float64(successful) / float64(total) * 100
	}
	return stats
}

// roundedPercent is part/whole*100 rounded half up, 0 when whole is 0
func roundedPercent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return (part*200 + whole) / (2 * whole)
}

func reviewedAfter(a, b models.CardProgress) bool {
	if a.LastReviewedAt == nil {
		return false
	}
	if b.LastReviewedAt == nil {
		return true
	}
	return a.LastReviewedAt.After(*b.LastReviewedAt)
}
