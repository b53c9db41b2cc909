package models

// CardStats summarizes progress on a single card
type CardStats struct {
	Level        int `json:"level"`
	TotalReviews int `json:"total_reviews"`
	SuccessRate  int `json:"success_rate"` // rounded percentage, 0..100
}

// DeckStats summarizes progress over all reviewed cards of a deck.
// SuccessRate is weighted by number of reviews, not averaged per card.
type DeckStats struct {
	DeckID         string  `json:"deck_id,omitempty"`
	TotalCards     int     `json:"total_cards"`
	CompletedCards int     `json:"completed_cards"`
	CompletionRate float64 `json:"completion_rate"`
	SuccessRate    float64 `json:"success_rate"`
}
