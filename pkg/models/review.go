package models

import "time"

// ReviewResult is returned after a review outcome has been recorded
type ReviewResult struct {
	Level        int       `json:"level"`
	NextReviewAt time.Time `json:"next_review_at"`
}
