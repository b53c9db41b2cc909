package spaced_repetition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/deckbot/pkg/models"
)

// Scheduler records review outcomes and computes the next review time of a card
type Scheduler struct {
	store  ProgressStore
	levels LevelTable
	opts   options
}

// NewScheduler creates a scheduler over a store with an injected level table
func NewScheduler(store ProgressStore, levels LevelTable, opts ...Option) *Scheduler {
	return &Scheduler{
		store:  store,
		levels: levels,
		opts:   buildOptions(opts),
	}
}

// Levels returns the table the scheduler was built with
func (s *Scheduler) Levels() LevelTable {
	return s.levels
}

// UpdateProgress records one review of a card and moves it to its next level.
// The whole read-modify-write goes through ProgressStore.PutAtomic.
func (s *Scheduler) UpdateProgress(ctx context.Context, userID int64, deckID, cardID string, wasSuccessful bool) (models.ReviewResult, error) {
	key := models.ProgressKey{UserID: userID, DeckID: deckID, CardID: cardID}
	if err := ValidateKey(key); err != nil {
		return models.ReviewResult{}, err
	}

	now := s.opts.instant()
	updated, err := s.store.PutAtomic(ctx, key, func(current models.CardProgress) (models.CardProgress, error) {
		newLevel := NextLevel(current.Level, wasSuccessful)
		interval, err := s.levels.IntervalFor(newLevel)
		if err != nil {
			return current, err
		}

		next := current
		next.Level = newLevel
		next.NextReviewAt = timePtr(now.Add(interval))
		next.LastReviewedAt = timePtr(now)
		next.TotalReviews++
		if wasSuccessful {
			next.SuccessfulReviews++
		}
		return next, nil
	})
	if err != nil {
		s.opts.logger.Error("update progress failed",
			slog.Int64("user_id", userID), slog.String("deck_id", deckID), slog.String("card_id", cardID),
			slog.String("error", err.Error()))
		return models.ReviewResult{}, storeError("update progress", err)
	}

	s.opts.logger.Debug("progress updated",
		slog.Int64("user_id", userID), slog.String("deck_id", deckID), slog.String("card_id", cardID),
		slog.Bool("successful", wasSuccessful), slog.Int("level", updated.Level))

	return models.ReviewResult{Level: updated.Level, NextReviewAt: *updated.NextReviewAt}, nil
}

// ResetProgress puts a card back to level 0, due now, with its review counters cleared.
// Calling it repeatedly converges on the same state.
func (s *Scheduler) ResetProgress(ctx context.Context, userID int64, deckID, cardID string) error {
	key := models.ProgressKey{UserID: userID, DeckID: deckID, CardID: cardID}
	if err := ValidateKey(key); err != nil {
		return err
	}

	now := s.opts.instant()
	_, err := s.store.PutAtomic(ctx, key, func(current models.CardProgress) (models.CardProgress, error) {
		reset := models.NewCardProgress(key)
		reset.NextReviewAt = timePtr(now)
		reset.Version = current.Version
		return reset, nil
	})
	if err != nil {
		s.opts.logger.Error("reset progress failed",
			slog.Int64("user_id", userID), slog.String("deck_id", deckID), slog.String("card_id", cardID),
			slog.String("error", err.Error()))
		return storeError("reset progress", err)
	}
	return nil
}

// Preview computes what a review outcome would do to a card at level without storing anything
func (s *Scheduler) Preview(level int, wasSuccessful bool) (models.ReviewResult, error) {
	if level < 0 || level > models.MaxLevel {
		return models.ReviewResult{}, fmt.Errorf("%w: level %d outside [0,%d]", ErrInvalidInput, level, models.MaxLevel)
	}
	newLevel := NextLevel(level, wasSuccessful)
	interval, err := s.levels.IntervalFor(newLevel)
	if err != nil {
		return models.ReviewResult{}, err
	}
	return models.ReviewResult{Level: newLevel, NextReviewAt: s.opts.instant().Add(interval)}, nil
}
