package spaced_repetition

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/example/deckbot/pkg/models"
)

// maxIDLength bounds deck and card identifiers
const maxIDLength = 128

// UpdateFunc computes the new value of a record from its current value.
// It receives models.NewCardProgress(key) when no record exists.
// It may be called more than once when a commit is retried, so it must not have side effects.
type UpdateFunc func(current models.CardProgress) (models.CardProgress, error)

// ProgressStore is the persisted keyed storage for progress records
type ProgressStore interface {
	// Get returns ErrNotFound when the card was never reviewed
	Get(ctx context.Context, key models.ProgressKey) (models.CardProgress, error)
	// PutAtomic applies fn to the current value and commits only if nobody modified
	// the record in between, retrying internally on conflict
	PutAtomic(ctx context.Context, key models.ProgressKey, fn UpdateFunc) (models.CardProgress, error)
	// QueryByDeck returns all records of one deck for one user
	QueryByDeck(ctx context.Context, userID int64, deckID string) ([]models.CardProgress, error)
	// QueryByCard returns the records of a card across the user's decks
	QueryByCard(ctx context.Context, userID int64, cardID string) ([]models.CardProgress, error)
}

// Catalog lists the cards of a deck in display order
type Catalog interface {
	ListCardIDs(ctx context.Context, deckID string) ([]string, error)
}

// ValidateID checks a deck or card identifier
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s id is required", ErrInvalidInput, kind)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: %s id longer than %d bytes", ErrInvalidInput, kind, maxIDLength)
	}
	for _, r := range id {
		if r == '/' || unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%w: %s id %q contains %q", ErrInvalidInput, kind, id, r)
		}
	}
	return nil
}

// ValidateUserID checks a user identifier
func ValidateUserID(userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user id must be positive, got %d", ErrInvalidInput, userID)
	}
	return nil
}

// ValidateKey checks every part of a progress key
func ValidateKey(key models.ProgressKey) error {
	if err := ValidateUserID(key.UserID); err != nil {
		return err
	}
	if err := ValidateID("deck", key.DeckID); err != nil {
		return err
	}
	return ValidateID("card", key.CardID)
}

// RetryPolicy bounds optimistic commit attempts
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1,max=100"`
	BaseDelay   time.Duration `yaml:"base_delay" validate:"min=0"`
	MaxDelay    time.Duration `yaml:"max_delay" validate:"min=0"`
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
	}
}

// Run calls attempt until it succeeds, fails with something other than ErrConflict,
// or the attempt budget runs out. Backoff doubles after each conflict and is cut short by ctx.
func (p RetryPolicy) Run(ctx context.Context, attempt func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := attempt()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if i == attempts-1 {
			break
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrConflictExhausted, attempts)
}
