package models

import "time"

// Deck represents a collection of cards owned by a user
type Deck struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   int64     `json:"owner_id" db:"owner_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Card is a single learning item of a deck
type Card struct {
	ID        string    `json:"id" db:"id"`
	DeckID    string    `json:"deck_id" db:"deck_id"`
	Front     string    `json:"front" db:"front"`
	Back      string    `json:"back" db:"back"`
	Position  int       `json:"position" db:"position"` // order inside the deck
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
