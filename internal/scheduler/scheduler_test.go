package scheduler

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

var t0 = time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)

type fakeUsers struct {
	byHour map[int][]models.User
	err    error
}

func (f fakeUsers) GetUsersForNotification(_ context.Context, hour int) ([]models.User, error) {
	return f.byHour[hour], f.err
}

type fakeDecks map[int64][]string

func (f fakeDecks) ListOwnerDeckIDs(_ context.Context, ownerID int64) ([]string, error) {
	return f[ownerID], nil
}

type fakeCatalog map[string][]string

func (f fakeCatalog) ListCardIDs(_ context.Context, deckID string) ([]string, error) {
	return f[deckID], nil
}

type reminder struct {
	userID int64
	count  int
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []reminder
	fail map[int64]bool
}

func (n *recordingNotifier) SendReminders(_ context.Context, userID int64, count int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[userID] {
		return errors.New("chat not found")
	}
	n.sent = append(n.sent, reminder{userID, count})
	return nil
}

type fixture struct {
	store    *srs.MemoryStore
	notifier *recordingNotifier
	sched    *Scheduler
	review   *srs.Scheduler
}

func newFixture(t *testing.T, users fakeUsers) *fixture {
	t.Helper()
	store := srs.NewMemoryStore(srs.DefaultRetryPolicy())
	clock := srs.WithClock(func() time.Time { return t0 })
	notifier := &recordingNotifier{fail: map[int64]bool{}}
	sched := New(notifier, Config{
		Users: users,
		Decks: fakeDecks{
			1: {"verbs", "nouns"},
			2: {"verbs"},
			3: {"empty"},
		},
		Catalog:   fakeCatalog{"verbs": {"go", "be", "have"}, "nouns": {"cat", "dog"}},
		Due:       srs.NewDueSetQuery(store, clock),
		StartHour: DefaultNotificationStartHour,
		EndHour:   DefaultNotificationEndHour,
	})
	t.Cleanup(sched.Stop)
	return &fixture{
		store:    store,
		notifier: notifier,
		sched:    sched,
		review:   srs.NewScheduler(store, srs.DefaultLevelTable(), clock),
	}
}

func TestRunCheckSendsCappedCounts(t *testing.T) {
	f := newFixture(t, fakeUsers{byHour: map[int][]models.User{
		9: {
			{ID: 1, CardsPerDay: 3},
			{ID: 2, CardsPerDay: 20},
			{ID: 3, CardsPerDay: 20},
		},
	}})
	ctx := context.Background()
	_, err := f.review.UpdateProgress(ctx, 2, "verbs", "go", true)
	require.NoError(t, err)

	sent, err := f.sched.RunCheck(ctx, t0)
	require.NoError(t, err)

	assert.Equal(t, 2, sent)
	// user 1 has five due cards capped to three, user 2 reviewed one of three, user 3 has nothing due
	assert.Equal(t, []reminder{{1, 3}, {2, 2}}, f.notifier.sent)
}

func TestRunCheckOutsideWindow(t *testing.T) {
	f := newFixture(t, fakeUsers{byHour: map[int][]models.User{
		22: {{ID: 1, CardsPerDay: 20}},
	}})

	sent, err := f.sched.RunCheck(context.Background(), t0.Add(13*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, f.notifier.sent)
}

func TestRunCheckContinuesAfterNotifierFailure(t *testing.T) {
	f := newFixture(t, fakeUsers{byHour: map[int][]models.User{
		9: {{ID: 1, CardsPerDay: 20}, {ID: 2, CardsPerDay: 20}},
	}})
	f.notifier.fail[1] = true

	sent, err := f.sched.RunCheck(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []reminder{{2, 3}}, f.notifier.sent)
}

func TestRunCheckUserSourceError(t *testing.T) {
	f := newFixture(t, fakeUsers{err: errors.New("db down")})

	_, err := f.sched.RunCheck(context.Background(), t0)
	assert.Error(t, err)
}

func TestCountDue(t *testing.T) {
	f := newFixture(t, fakeUsers{})
	ctx := context.Background()

	n, err := f.sched.CountDue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = f.review.UpdateProgress(ctx, 1, "nouns", "cat", true)
	require.NoError(t, err)
	n, err = f.sched.CountDue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStartAndStop(t *testing.T) {
	f := newFixture(t, fakeUsers{})
	require.NoError(t, f.sched.Start())
}

func TestNextHour(t *testing.T) {
	assert.Equal(t, t0.Add(time.Hour), nextHour(t0.Add(25*time.Minute)))
}
