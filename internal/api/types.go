package api

import "github.com/example/deckbot/pkg/models"

// ReviewRequest is the body of POST .../review
type ReviewRequest struct {
	// Successful is a pointer so that an omitted field fails binding instead of meaning false
	Successful *bool `json:"successful" binding:"required"`
}

// DueResponse lists the due cards of a deck in catalog order
type DueResponse struct {
	DeckID string   `json:"deck_id"`
	Cards  []string `json:"cards"`
}

// OverviewResponse carries per-deck statistics of one user
type OverviewResponse struct {
	UserID int64              `json:"user_id"`
	Decks  []models.DeckStats `json:"decks"`
}

// HealthResponse is returned by /healthz
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code"`
}
