package models

import "time"

// MaxLevel is the highest mastery level a card can reach
const MaxLevel = 8

// ProgressKey identifies a single progress record: one card of one deck for one user
type ProgressKey struct {
	UserID int64  `json:"user_id" db:"user_id"`
	DeckID string `json:"deck_id" db:"deck_id"`
	CardID string `json:"card_id" db:"card_id"`
}

// CardProgress tracks a user's progress with a specific card
type CardProgress struct {
	ProgressKey
	Level             int        `json:"level" db:"level"`                           // 0..MaxLevel
	NextReviewAt      *time.Time `json:"next_review_at,omitempty" db:"next_review_at"` // nil means due now
	LastReviewedAt    *time.Time `json:"last_reviewed_at,omitempty" db:"last_reviewed_at"`
	TotalReviews      int        `json:"total_reviews" db:"total_reviews"`
	SuccessfulReviews int        `json:"successful_reviews" db:"successful_reviews"`
	// Version is bumped by the store on every committed write
	Version int64 `json:"version" db:"version"`
}

// NewCardProgress returns the implicit state of a card that has never been reviewed.
// Every place that needs a default record must go through here.
func NewCardProgress(key ProgressKey) CardProgress {
	return CardProgress{ProgressKey: key}
}

// IsDue reports whether the card should be shown at the given instant
func (p CardProgress) IsDue(now time.Time) bool {
	return p.NextReviewAt == nil || !p.NextReviewAt.After(now)
}

// IsMastered reports whether the card reached the top level
func (p CardProgress) IsMastered() bool {
	return p.Level >= MaxLevel
}

// Validate checks the record's range invariants
func (p CardProgress) Validate() bool {
	return p.Level >= 0 && p.Level <= MaxLevel &&
		p.TotalReviews >= 0 &&
		p.SuccessfulReviews >= 0 && p.SuccessfulReviews <= p.TotalReviews
}
