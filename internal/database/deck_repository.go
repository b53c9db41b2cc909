package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/deckbot/pkg/models"
)

// ErrDeckNotFound is returned when a deck does not exist
var ErrDeckNotFound = errors.New("deck not found")

// DeckRepository handles database operations for decks
type DeckRepository struct {
	db *sqlx.DB
}

// NewDeckRepository creates a new repository instance
func NewDeckRepository(db *sqlx.DB) *DeckRepository {
	return &DeckRepository{db: db}
}

// GetByID returns a deck by ID
func (r *DeckRepository) GetByID(ctx context.Context, id string) (*models.Deck, error) {
	var deck models.Deck
	err := r.db.GetContext(ctx, &deck, r.db.Rebind("SELECT id, owner_id, name, created_at FROM decks WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDeckNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deck by ID: %w", err)
	}
	return &deck, nil
}

// ListByOwner returns the decks of a user ordered by name
func (r *DeckRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.Deck, error) {
	decks := []models.Deck{}
	err := r.db.SelectContext(ctx, &decks,
		r.db.Rebind("SELECT id, owner_id, name, created_at FROM decks WHERE owner_id = ? ORDER BY name, id"), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	return decks, nil
}

// ListOwnerDeckIDs returns only the ids of a user's decks
func (r *DeckRepository) ListOwnerDeckIDs(ctx context.Context, ownerID int64) ([]string, error) {
	decks, err := r.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(decks))
	for _, d := range decks {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// Create inserts a new deck
func (r *DeckRepository) Create(ctx context.Context, deck *models.Deck) error {
	_, err := r.db.NamedExecContext(ctx,
		"INSERT INTO decks (id, owner_id, name) VALUES (:id, :owner_id, :name)", deck)
	if err != nil {
		return fmt.Errorf("failed to create deck: %w", err)
	}
	return nil
}
