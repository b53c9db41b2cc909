package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	srs "github.com/example/deckbot/internal/spaced_repetition"
	"github.com/example/deckbot/pkg/models"
)

const progressColumns = `user_id, deck_id, card_id, level, next_review_at, last_reviewed_at,
	total_reviews, successful_reviews, version`

// progressRow carries the version the row had when it was read, for the compare-and-swap
type progressRow struct {
	models.CardProgress
	PrevVersion int64     `db:"prev_version"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// ProgressRepository stores card progress in SQL and implements spaced_repetition.ProgressStore.
// Updates are optimistic: the row is read, the new value computed without holding
// a connection, then written with a version check. A lost race is retried.
type ProgressRepository struct {
	db    *sqlx.DB
	retry srs.RetryPolicy
}

// NewProgressRepository creates a new repository instance
func NewProgressRepository(db *sqlx.DB, retry srs.RetryPolicy) *ProgressRepository {
	return &ProgressRepository{db: db, retry: retry}
}

// Get returns progress for a specific user and card
func (r *ProgressRepository) Get(ctx context.Context, key models.ProgressKey) (models.CardProgress, error) {
	p, found, err := r.load(ctx, key)
	if err != nil {
		return models.CardProgress{}, err
	}
	if !found {
		return models.CardProgress{}, srs.ErrNotFound
	}
	return p, nil
}

// PutAtomic implements spaced_repetition.ProgressStore
func (r *ProgressRepository) PutAtomic(ctx context.Context, key models.ProgressKey, fn srs.UpdateFunc) (models.CardProgress, error) {
	var committed models.CardProgress
	err := r.retry.Run(ctx, func() error {
		current, found, err := r.load(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			current = models.NewCardProgress(key)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		next.ProgressKey = key
		if !next.Validate() {
			return fmt.Errorf("%w: progress record out of range", srs.ErrInvalidInput)
		}
		next.NextReviewAt = utcPtr(next.NextReviewAt)
		next.LastReviewedAt = utcPtr(next.LastReviewedAt)
		next.Version = current.Version + 1

		row := progressRow{CardProgress: next, PrevVersion: current.Version, UpdatedAt: time.Now().UTC()}
		var res sql.Result
		if !found {
			res, err = r.db.NamedExecContext(ctx, `
				INSERT INTO card_progress (
					user_id, deck_id, card_id, level, next_review_at, last_reviewed_at,
					total_reviews, successful_reviews, version, updated_at
				) VALUES (
					:user_id, :deck_id, :card_id, :level, :next_review_at, :last_reviewed_at,
					:total_reviews, :successful_reviews, :version, :updated_at
				)
				ON CONFLICT (user_id, deck_id, card_id) DO NOTHING
			`, row)
		} else {
			res, err = r.db.NamedExecContext(ctx, `
				UPDATE card_progress SET
					level = :level,
					next_review_at = :next_review_at,
					last_reviewed_at = :last_reviewed_at,
					total_reviews = :total_reviews,
					successful_reviews = :successful_reviews,
					version = :version,
					updated_at = :updated_at
				WHERE user_id = :user_id AND deck_id = :deck_id AND card_id = :card_id
					AND version = :prev_version
			`, row)
		}
		if err != nil {
			return r.unavailable(ctx, "write card progress", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return r.unavailable(ctx, "get rows affected", err)
		}
		if rows == 0 {
			// someone else inserted or updated the row since we read it
			return srs.ErrConflict
		}
		committed = next
		return nil
	})
	if err != nil {
		return models.CardProgress{}, err
	}
	return committed, nil
}

// QueryByDeck returns all progress of a user in one deck
func (r *ProgressRepository) QueryByDeck(ctx context.Context, userID int64, deckID string) ([]models.CardProgress, error) {
	query := r.db.Rebind(`SELECT ` + progressColumns + ` FROM card_progress
		WHERE user_id = ? AND deck_id = ?
		ORDER BY card_id`)
	return r.selectProgress(ctx, query, userID, deckID)
}

// QueryByCard returns the progress of a card in every deck of the user that contains it
func (r *ProgressRepository) QueryByCard(ctx context.Context, userID int64, cardID string) ([]models.CardProgress, error) {
	query := r.db.Rebind(`SELECT ` + progressColumns + ` FROM card_progress
		WHERE user_id = ? AND card_id = ?
		ORDER BY deck_id`)
	return r.selectProgress(ctx, query, userID, cardID)
}

func (r *ProgressRepository) load(ctx context.Context, key models.ProgressKey) (models.CardProgress, bool, error) {
	var p models.CardProgress
	query := r.db.Rebind(`SELECT ` + progressColumns + ` FROM card_progress
		WHERE user_id = ? AND deck_id = ? AND card_id = ?`)
	err := r.db.GetContext(ctx, &p, query, key.UserID, key.DeckID, key.CardID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CardProgress{}, false, nil
	}
	if err != nil {
		return models.CardProgress{}, false, r.unavailable(ctx, "get card progress", err)
	}
	normalize(&p)
	return p, true, nil
}

func (r *ProgressRepository) selectProgress(ctx context.Context, query string, args ...interface{}) ([]models.CardProgress, error) {
	var progress []models.CardProgress
	if err := r.db.SelectContext(ctx, &progress, query, args...); err != nil {
		return nil, r.unavailable(ctx, "query card progress", err)
	}
	for i := range progress {
		normalize(&progress[i])
	}
	return progress, nil
}

// unavailable maps a driver error; a canceled caller gets its own context error back
func (r *ProgressRepository) unavailable(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: failed to %s: %v", srs.ErrStoreUnavailable, op, err)
}

// normalize returns timestamps in UTC whatever the driver handed back
func normalize(p *models.CardProgress) {
	p.NextReviewAt = utcPtr(p.NextReviewAt)
	p.LastReviewedAt = utcPtr(p.LastReviewedAt)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
