// Package metrics exposes Prometheus instrumentation for reviews and progress storage.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	srs "github.com/example/deckbot/internal/spaced_repetition"
	"github.com/example/deckbot/pkg/models"
)

const namespace = "deckbot"

// Metrics holds the collectors. Create one per registry.
type Metrics struct {
	// ReviewsTotal counts answered reviews.
	// Labels: outcome (success, failure, error)
	ReviewsTotal *prometheus.CounterVec

	// StoreOpDuration measures progress store calls.
	// Labels: op (get, put_atomic, query_by_deck, query_by_card)
	StoreOpDuration *prometheus.HistogramVec

	// StoreErrorsTotal counts failed store calls.
	// Labels: op, kind (not_found, invalid_input, conflict_exhausted, unavailable, canceled, other)
	StoreErrorsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests
// to keep them isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReviewsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reviews_total",
				Help:      "Total number of card reviews by outcome",
			},
			[]string{"outcome"},
		),
		StoreOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "op_duration_seconds",
				Help:      "Duration of progress store operations in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"op"},
		),
		StoreErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Total number of failed progress store operations by kind",
			},
			[]string{"op", "kind"},
		),
		gatherer: reg,
	}
}

// ObserveReview records the outcome of one UpdateProgress call
func (m *Metrics) ObserveReview(successful bool, err error) {
	outcome := "failure"
	switch {
	case err != nil:
		outcome = "error"
	case successful:
		outcome = "success"
	}
	m.ReviewsTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ErrorKind maps an error to the label used by StoreErrorsTotal
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, srs.ErrNotFound):
		return "not_found"
	case errors.Is(err, srs.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, srs.ErrConflictExhausted):
		return "conflict_exhausted"
	case errors.Is(err, srs.ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

// InstrumentedStore wraps a ProgressStore and records timings and failures
type InstrumentedStore struct {
	next    srs.ProgressStore
	metrics *Metrics
}

// Instrument decorates store with m
func Instrument(store srs.ProgressStore, m *Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: store, metrics: m}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.metrics.StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	// a missing record is an ordinary answer, not a failure
	if err != nil && !errors.Is(err, srs.ErrNotFound) {
		s.metrics.StoreErrorsTotal.WithLabelValues(op, ErrorKind(err)).Inc()
	}
}

func (s *InstrumentedStore) Get(ctx context.Context, key models.ProgressKey) (models.CardProgress, error) {
	start := time.Now()
	p, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return p, err
}

func (s *InstrumentedStore) PutAtomic(ctx context.Context, key models.ProgressKey, fn srs.UpdateFunc) (models.CardProgress, error) {
	start := time.Now()
	p, err := s.next.PutAtomic(ctx, key, fn)
	s.observe("put_atomic", start, err)
	return p, err
}

func (s *InstrumentedStore) QueryByDeck(ctx context.Context, userID int64, deckID string) ([]models.CardProgress, error) {
	start := time.Now()
	records, err := s.next.QueryByDeck(ctx, userID, deckID)
	s.observe("query_by_deck", start, err)
	return records, err
}

func (s *InstrumentedStore) QueryByCard(ctx context.Context, userID int64, cardID string) ([]models.CardProgress, error) {
	start := time.Now()
	records, err := s.next.QueryByCard(ctx, userID, cardID)
	s.observe("query_by_card", start, err)
	return records, err
}
