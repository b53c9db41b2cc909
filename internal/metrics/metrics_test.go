package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srs "github.com/example/deckbot/internal/spaced_repetition"
	"github.com/example/deckbot/internal/spaced_repetition/storetest"
	"github.com/example/deckbot/pkg/models"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(prometheus.NewRegistry())
}

func TestInstrumentedStoreContract(t *testing.T) {
	m := newTestMetrics(t)
	storetest.Run(t, func(t *testing.T) srs.ProgressStore {
		return Instrument(srs.NewMemoryStore(storetest.RetryPolicy()), m)
	})
}

func TestObserveReview(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveReview(true, nil)
	m.ObserveReview(true, nil)
	m.ObserveReview(false, nil)
	m.ObserveReview(true, srs.ErrStoreUnavailable)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReviewsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReviewsTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReviewsTotal.WithLabelValues("error")))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{srs.ErrNotFound, "not_found"},
		{fmt.Errorf("%w: bad id", srs.ErrInvalidInput), "invalid_input"},
		{fmt.Errorf("%w after 5 attempts", srs.ErrConflictExhausted), "conflict_exhausted"},
		{fmt.Errorf("%w: disk", srs.ErrStoreUnavailable), "unavailable"},
		{context.DeadlineExceeded, "canceled"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestInstrumentedStoreCountsFailures(t *testing.T) {
	m := newTestMetrics(t)
	store := Instrument(srs.NewMemoryStore(srs.DefaultRetryPolicy()), m)
	ctx := context.Background()
	key := models.ProgressKey{UserID: 1, DeckID: "d", CardID: "c"}

	_, err := store.Get(ctx, key)
	require.ErrorIs(t, err, srs.ErrNotFound)

	_, err = store.PutAtomic(ctx, key, func(p models.CardProgress) (models.CardProgress, error) {
		p.Level = 42
		return p, nil
	})
	require.ErrorIs(t, err, srs.ErrInvalidInput)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.StoreErrorsTotal.WithLabelValues("get", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrorsTotal.WithLabelValues("put_atomic", "invalid_input")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.StoreOpDuration))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveReview(true, nil)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `deckbot_reviews_total{outcome="success"} 1`))
}
