// Package storetest holds the behaviour every ProgressStore implementation must share.
// Store packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srs "github.com/example/deckbot/internal/spaced_repetition"
	"github.com/example/deckbot/pkg/models"
)

// Factory returns a fresh, empty store built with RetryPolicy(). Cleanup is registered on t.
type Factory func(t *testing.T) srs.ProgressStore

var t0 = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

// RetryPolicy is generous enough that the concurrency cases never exhaust it
func RetryPolicy() srs.RetryPolicy {
	return srs.RetryPolicy{MaxAttempts: 100, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

// Run executes the shared suite against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("PutAtomicCreatesAndUpdates", func(t *testing.T) { testPutAtomic(t, newStore(t)) })
	t.Run("UpdateFuncErrorWritesNothing", func(t *testing.T) { testUpdateFuncError(t, newStore(t)) })
	t.Run("QueryByDeck", func(t *testing.T) { testQueryByDeck(t, newStore(t)) })
	t.Run("QueryByCard", func(t *testing.T) { testQueryByCard(t, newStore(t)) })
	t.Run("ConcurrentReviews", func(t *testing.T) { testConcurrentReviews(t, newStore(t)) })
	t.Run("ConflictExhausted", func(t *testing.T) { testConflictExhausted(t, newStore(t)) })
	t.Run("CanceledContext", func(t *testing.T) { testCanceledContext(t, newStore(t)) })
	t.Run("Scheduler", func(t *testing.T) { testScheduler(t, newStore(t)) })
}

func key(deck, card string) models.ProgressKey {
	return models.ProgressKey{UserID: 42, DeckID: deck, CardID: card}
}

func reviewed(level, total, ok int) srs.UpdateFunc {
	return func(p models.CardProgress) (models.CardProgress, error) {
		next := t0.Add(time.Hour)
		last := t0
		p.Level = level
		p.TotalReviews = total
		p.SuccessfulReviews = ok
		p.NextReviewAt = &next
		p.LastReviewedAt = &last
		return p, nil
	}
}

func testGetMissing(t *testing.T, store srs.ProgressStore) {
	_, err := store.Get(context.Background(), key("d1", "c1"))
	assert.ErrorIs(t, err, srs.ErrNotFound)
}

func testPutAtomic(t *testing.T, store srs.ProgressStore) {
	ctx := context.Background()
	k := key("d1", "c1")

	var seen models.CardProgress
	created, err := store.PutAtomic(ctx, k, func(p models.CardProgress) (models.CardProgress, error) {
		seen = p
		return reviewed(3, 4, 3)(p)
	})
	require.NoError(t, err)
	assert.Equal(t, models.NewCardProgress(k), seen, "absent record must be presented as the zero-state")
	assert.Equal(t, 3, created.Level)
	assert.Equal(t, k, created.ProgressKey)

	got, err := store.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Level)
	assert.Equal(t, 4, got.TotalReviews)
	assert.Equal(t, 3, got.SuccessfulReviews)
	require.NotNil(t, got.NextReviewAt)
	require.NotNil(t, got.LastReviewedAt)
	assert.True(t, got.NextReviewAt.Equal(t0.Add(time.Hour)))
	assert.True(t, got.LastReviewedAt.Equal(t0))

	updated, err := store.PutAtomic(ctx, k, func(p models.CardProgress) (models.CardProgress, error) {
		assert.Equal(t, 3, p.Level)
		p.Level = 4
		p.LastReviewedAt = nil
		return p, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Level)
	assert.Greater(t, updated.Version, created.Version)

	got, err = store.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Level)
	assert.Nil(t, got.LastReviewedAt)
}

func testUpdateFuncError(t *testing.T, store srs.ProgressStore) {
	ctx := context.Background()
	k := key("d1", "c1")
	boom := errors.New("boom")

	_, err := store.PutAtomic(ctx, k, func(p models.CardProgress) (models.CardProgress, error) {
		p.Level = 5
		return p, boom
	})
	require.ErrorIs(t, err, boom)
	_, err = store.Get(ctx, k)
	assert.ErrorIs(t, err, srs.ErrNotFound)

	_, err = store.PutAtomic(ctx, k, func(p models.CardProgress) (models.CardProgress, error) {
		p.Level = 9
		return p, nil
	})
	require.ErrorIs(t, err, srs.ErrInvalidInput)
	_, err = store.Get(ctx, k)
	assert.ErrorIs(t, err, srs.ErrNotFound)
}

func testQueryByDeck(t *testing.T, store srs.ProgressStore) {
	ctx := context.Background()
	for _, k := range []models.ProgressKey{
		key("d1", "c2"), key("d1", "c1"), key("d2", "c1"),
		{UserID: 7, DeckID: "d1", CardID: "c3"},
	} {
		_, err := store.PutAtomic(ctx, k, reviewed(1, 1, 1))
		require.NoError(t, err)
	}

	records, err := store.QueryByDeck(ctx, 42, "d1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	ids := []string{records[0].CardID, records[1].CardID}
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)
	for _, p := range records {
		assert.Equal(t, "d1", p.DeckID)
		assert.Equal(t, int64(42), p.UserID)
	}

	empty, err := store.QueryByDeck(ctx, 42, "nope")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testQueryByCard(t *testing.T, store srs.ProgressStore) {
	ctx := context.Background()
	for _, k := range []models.ProgressKey{
		key("d1", "c1"), key("d2", "c1"), key("d2", "c2"),
		{UserID: 7, DeckID: "d1", CardID: "c1"},
	} {
		_, err := store.PutAtomic(ctx, k, reviewed(2, 2, 1))
		require.NoError(t, err)
	}

	records, err := store.QueryByCard(ctx, 42, "c1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	decks := []string{records[0].DeckID, records[1].DeckID}
	assert.ElementsMatch(t, []string{"d1", "d2"}, decks)
}

func testConcurrentReviews(t *testing.T, store srs.ProgressStore) {
	ctx := context.Background()
	scheduler := srs.NewScheduler(store, srs.DefaultLevelTable())
	const callers = 8

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(ok bool) {
			defer wg.Done()
			_, err := scheduler.UpdateProgress(ctx, 42, "d1", "c1", ok)
			errs <- err
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// heavy contention may exhaust the budget; it must never lose an update silently
		require.ErrorIs(t, err, srs.ErrConflictExhausted)
	}

	got, err := store.Get(ctx, key("d1", "c1"))
	require.NoError(t, err)
	assert.Equal(t, succeeded, got.TotalReviews, "every committed review must be counted once")
	assert.Equal(t, callers, succeeded)
}

func testConflictExhausted(t *testing.T, store srs.ProgressStore) {
	ctx := context.Background()
	k := key("d1", "c1")
	_, err := store.PutAtomic(ctx, k, reviewed(1, 1, 1))
	require.NoError(t, err)

	// every attempt is overtaken by a competing writer before it commits
	_, err = store.PutAtomic(ctx, k, func(p models.CardProgress) (models.CardProgress, error) {
		if _, err := store.PutAtomic(ctx, k, func(q models.CardProgress) (models.CardProgress, error) {
			q.TotalReviews++
			q.SuccessfulReviews++
			return q, nil
		}); err != nil {
			return p, err
		}
		p.Level = 8
		return p, nil
	})
	require.ErrorIs(t, err, srs.ErrConflictExhausted)

	got, err := store.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Level, "the losing update must not be persisted")
	assert.Greater(t, got.TotalReviews, 1)
}

func testCanceledContext(t *testing.T, store srs.ProgressStore) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.PutAtomic(ctx, key("d1", "c1"), reviewed(1, 1, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Get(context.Background(), key("d1", "c1"))
	assert.ErrorIs(t, err, srs.ErrNotFound)
}

func testScheduler(t *testing.T, store srs.ProgressStore) {
	ctx := context.Background()
	now := t0
	clock := srs.WithClock(func() time.Time { return now })
	scheduler := srs.NewScheduler(store, srs.DefaultLevelTable(), clock)
	stats := srs.NewStatsAggregator(store, clock)
	due := srs.NewDueSetQuery(store, clock)

	res, err := scheduler.UpdateProgress(ctx, 42, "d1", "c1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Level)
	assert.True(t, res.NextReviewAt.Equal(t0.Add(4*time.Hour)))

	cards, err := due.GetDueCards(ctx, 42, "d1", []string{"c0", "c1", "c2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c2"}, cards)

	now = t0.Add(4 * time.Hour)
	cards, err = due.GetDueCards(ctx, 42, "d1", []string{"c0", "c1", "c2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c1", "c2"}, cards)

	_, err = scheduler.UpdateProgress(ctx, 42, "d1", "c1", false)
	require.NoError(t, err)
	cs, err := stats.GetCardStats(ctx, 42, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.CardStats{Level: 1, TotalReviews: 2, SuccessRate: 50}, cs)

	require.NoError(t, scheduler.ResetProgress(ctx, 42, "d1", "c1"))
	got, err := store.Get(ctx, key("d1", "c1"))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Level)
	assert.Equal(t, 0, got.TotalReviews)
	assert.Nil(t, got.LastReviewedAt)
	require.NotNil(t, got.NextReviewAt)
	assert.True(t, got.NextReviewAt.Equal(now))
}
