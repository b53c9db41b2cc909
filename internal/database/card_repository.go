package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/deckbot/pkg/models"
)

// ErrCardNotFound is returned when a card does not exist in the deck
var ErrCardNotFound = errors.New("card not found")

// CardRepository handles database operations for cards.
// It is the item catalog the due-card query filters.
type CardRepository struct {
	db *sqlx.DB
}

// NewCardRepository creates a new repository instance
func NewCardRepository(db *sqlx.DB) *CardRepository {
	return &CardRepository{db: db}
}

// ListCardIDs returns the ids of a deck's cards in display order
func (r *CardRepository) ListCardIDs(ctx context.Context, deckID string) ([]string, error) {
	ids := []string{}
	err := r.db.SelectContext(ctx, &ids,
		r.db.Rebind("SELECT id FROM cards WHERE deck_id = ? ORDER BY position, id"), deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return ids, nil
}

// GetByDeck returns the cards of a deck in display order
func (r *CardRepository) GetByDeck(ctx context.Context, deckID string) ([]models.Card, error) {
	cards := []models.Card{}
	err := r.db.SelectContext(ctx, &cards,
		r.db.Rebind("SELECT id, deck_id, front, back, position, created_at FROM cards WHERE deck_id = ? ORDER BY position, id"), deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards by deck: %w", err)
	}
	return cards, nil
}

// GetByID returns one card of a deck
func (r *CardRepository) GetByID(ctx context.Context, deckID, cardID string) (*models.Card, error) {
	var card models.Card
	err := r.db.GetContext(ctx, &card,
		r.db.Rebind("SELECT id, deck_id, front, back, position, created_at FROM cards WHERE deck_id = ? AND id = ?"),
		deckID, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrCardNotFound, deckID, cardID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card by ID: %w", err)
	}
	return &card, nil
}

// Create inserts a new card
func (r *CardRepository) Create(ctx context.Context, card *models.Card) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO cards (id, deck_id, front, back, position)
		VALUES (:id, :deck_id, :front, :back, :position)
	`, card)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}
