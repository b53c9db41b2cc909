package spaced_repetition

import (
	"context"
	"fmt"

	"github.com/example/deckbot/pkg/models"
)

// DueSetQuery selects the cards of a deck that should be studied now
type DueSetQuery struct {
	store ProgressStore
	opts  options
}

// NewDueSetQuery creates a query over a store
func NewDueSetQuery(store ProgressStore, opts ...Option) *DueSetQuery {
	return &DueSetQuery{store: store, opts: buildOptions(opts)}
}

// GetDueCards filters catalog down to the cards that are due: never reviewed,
// or with a next review time at or before now. Catalog order is kept.
func (q *DueSetQuery) GetDueCards(ctx context.Context, userID int64, deckID string, catalog []string) ([]string, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := ValidateID("deck", deckID); err != nil {
		return nil, err
	}

	records, err := q.store.QueryByDeck(ctx, userID, deckID)
	if err != nil {
		return nil, storeError("get due cards", err)
	}
	byCard := make(map[string]models.CardProgress, len(records))
	for _, p := range records {
		byCard[p.CardID] = p
	}

	now := q.opts.instant()
	due := make([]string, 0, len(catalog))
	for _, cardID := range catalog {
		p, ok := byCard[cardID]
		if !ok || p.IsDue(now) {
			due = append(due, cardID)
		}
	}
	return due, nil
}

// DueFromCatalog fetches the deck's cards from catalog and returns the due ones
func (q *DueSetQuery) DueFromCatalog(ctx context.Context, catalog Catalog, userID int64, deckID string) ([]string, error) {
	if err := ValidateID("deck", deckID); err != nil {
		return nil, err
	}
	cardIDs, err := catalog.ListCardIDs(ctx, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards of deck %s: %w", deckID, err)
	}
	return q.GetDueCards(ctx, userID, deckID, cardIDs)
}
