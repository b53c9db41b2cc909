package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srs "github.com/example/deckbot/internal/spaced_repetition"
	"github.com/example/deckbot/internal/spaced_repetition/storetest"
	"github.com/example/deckbot/pkg/models"
)

func TestProgressStoreInMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) srs.ProgressStore {
		s, err := OpenInMemory(storetest.RetryPolicy())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestProgressStorePersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.SyncWrites = false
	cfg.GCInterval = 0
	ctx := context.Background()
	key := models.ProgressKey{UserID: 3, DeckID: "d", CardID: "c"}

	s, err := Open(cfg, srs.DefaultRetryPolicy())
	require.NoError(t, err)
	scheduler := srs.NewScheduler(s, srs.DefaultLevelTable())
	_, err = scheduler.UpdateProgress(ctx, 3, "d", "c", true)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(cfg, srs.DefaultRetryPolicy())
	require.NoError(t, err)
	defer reopened.Close()

	p, err := reopened.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 1, p.TotalReviews)
	assert.Equal(t, int64(1), p.Version)
}

func TestDeckPrefixDoesNotMatchLongerDeckIDs(t *testing.T) {
	s, err := OpenInMemory(srs.DefaultRetryPolicy())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	scheduler := srs.NewScheduler(s, srs.DefaultLevelTable())

	_, err = scheduler.UpdateProgress(ctx, 1, "deck", "a", true)
	require.NoError(t, err)
	_, err = scheduler.UpdateProgress(ctx, 1, "deck-2", "b", true)
	require.NoError(t, err)
	_, err = scheduler.UpdateProgress(ctx, 11, "deck", "c", true)
	require.NoError(t, err)

	records, err := s.QueryByDeck(ctx, 1, "deck")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].CardID)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{}, srs.DefaultRetryPolicy())
	assert.Error(t, err)
}
