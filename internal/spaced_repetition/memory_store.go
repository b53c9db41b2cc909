package spaced_repetition

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/deckbot/pkg/models"
)

// MemoryStore is an in-process ProgressStore. It uses the same optimistic
// read / compute / compare-version / commit cycle as the persistent stores,
// so UpdateFunc runs without any lock held.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[models.ProgressKey]models.CardProgress
	retry   RetryPolicy
}

// NewMemoryStore creates an empty store
func NewMemoryStore(retry RetryPolicy) *MemoryStore {
	return &MemoryStore{
		records: make(map[models.ProgressKey]models.CardProgress),
		retry:   retry,
	}
}

// Get returns a copy of the stored record
func (m *MemoryStore) Get(ctx context.Context, key models.ProgressKey) (models.CardProgress, error) {
	if err := ctx.Err(); err != nil {
		return models.CardProgress{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.records[key]
	if !ok {
		return models.CardProgress{}, ErrNotFound
	}
	return cloneProgress(p), nil
}

// PutAtomic implements ProgressStore
func (m *MemoryStore) PutAtomic(ctx context.Context, key models.ProgressKey, fn UpdateFunc) (models.CardProgress, error) {
	var committed models.CardProgress
	err := m.retry.Run(ctx, func() error {
		m.mu.RLock()
		current, ok := m.records[key]
		m.mu.RUnlock()
		if !ok {
			current = models.NewCardProgress(key)
		}

		next, err := fn(cloneProgress(current))
		if err != nil {
			return err
		}
		next.ProgressKey = key
		if !next.Validate() {
			return fmt.Errorf("%w: progress record out of range", ErrInvalidInput)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		// absent records have version 0
		if m.records[key].Version != current.Version {
			return ErrConflict
		}
		next.Version = current.Version + 1
		m.records[key] = cloneProgress(next)
		committed = next
		return nil
	})
	if err != nil {
		return models.CardProgress{}, err
	}
	return committed, nil
}

// QueryByDeck implements ProgressStore; records are ordered by card id
func (m *MemoryStore) QueryByDeck(ctx context.Context, userID int64, deckID string) ([]models.CardProgress, error) {
	return m.query(ctx, func(k models.ProgressKey) bool {
		return k.UserID == userID && k.DeckID == deckID
	})
}

// QueryByCard implements ProgressStore; records are ordered by deck id
func (m *MemoryStore) QueryByCard(ctx context.Context, userID int64, cardID string) ([]models.CardProgress, error) {
	return m.query(ctx, func(k models.ProgressKey) bool {
		return k.UserID == userID && k.CardID == cardID
	})
}

func (m *MemoryStore) query(ctx context.Context, match func(models.ProgressKey) bool) ([]models.CardProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var out []models.CardProgress
	for k, p := range m.records {
		if match(k) {
			out = append(out, cloneProgress(p))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DeckID != out[j].DeckID {
			return out[i].DeckID < out[j].DeckID
		}
		return out[i].CardID < out[j].CardID
	})
	return out, nil
}

func cloneProgress(p models.CardProgress) models.CardProgress {
	if p.NextReviewAt != nil {
		t := *p.NextReviewAt
		p.NextReviewAt = &t
	}
	if p.LastReviewedAt != nil {
		t := *p.LastReviewedAt
		p.LastReviewedAt = &t
	}
	return p
}

// timePtr is a small helper for building records
func timePtr(t time.Time) *time.Time {
	return &t
}
