package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	srs "github.com/example/deckbot/internal/spaced_repetition"
	"github.com/example/deckbot/pkg/models"
)

const progressPrefix = "progress/"

// ProgressStore implements spaced_repetition.ProgressStore on BadgerDB.
// Records live under progress/<user>/<deck>/<card> as JSON.
type ProgressStore struct {
	db    *badger.DB
	gc    *gcRunner
	retry srs.RetryPolicy
}

// Open opens the database and starts value log GC when configured.
// Caller must call Close when done.
func Open(cfg Config, retry srs.RetryPolicy) (*ProgressStore, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	s := &ProgressStore{db: db, retry: retry}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		s.gc = runner
		runner.start()
	}
	return s, nil
}

// OpenInMemory opens a store whose data is lost on Close
func OpenInMemory(retry srs.RetryPolicy) (*ProgressStore, error) {
	return Open(InMemoryConfig(), retry)
}

// Close stops garbage collection and closes the database
func (s *ProgressStore) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// Get implements spaced_repetition.ProgressStore
func (s *ProgressStore) Get(ctx context.Context, key models.ProgressKey) (models.CardProgress, error) {
	if err := ctx.Err(); err != nil {
		return models.CardProgress{}, err
	}
	var p models.CardProgress
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = readProgress(txn, key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.CardProgress{}, srs.ErrNotFound
	}
	if err != nil {
		return models.CardProgress{}, unavailable("get card progress", err)
	}
	return p, nil
}

// PutAtomic runs fn inside a read-write transaction. Badger tracks the read
// key and refuses the commit if another transaction wrote it first.
func (s *ProgressStore) PutAtomic(ctx context.Context, key models.ProgressKey, fn srs.UpdateFunc) (models.CardProgress, error) {
	var committed models.CardProgress
	err := s.retry.Run(ctx, func() error {
		txn := s.db.NewTransaction(true)
		defer txn.Discard()

		current, err := readProgress(txn, key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			current = models.NewCardProgress(key)
		} else if err != nil {
			return unavailable("get card progress", err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		next.ProgressKey = key
		if !next.Validate() {
			return fmt.Errorf("%w: progress record out of range", srs.ErrInvalidInput)
		}
		next.Version = current.Version + 1

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal card progress: %w", err)
		}
		if err := txn.Set(progressKey(key), data); err != nil {
			return unavailable("set card progress", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := txn.Commit(); err != nil {
			if errors.Is(err, badger.ErrConflict) {
				return srs.ErrConflict
			}
			return unavailable("commit card progress", err)
		}
		committed = next
		return nil
	})
	if err != nil {
		return models.CardProgress{}, err
	}
	return committed, nil
}

// QueryByDeck implements spaced_repetition.ProgressStore; records come back in card id order
func (s *ProgressStore) QueryByDeck(ctx context.Context, userID int64, deckID string) ([]models.CardProgress, error) {
	prefix := userPrefix(userID) + deckID + "/"
	return s.scan(ctx, prefix, func(models.CardProgress) bool { return true })
}

// QueryByCard implements spaced_repetition.ProgressStore.
// There is no secondary index, so this scans all of the user's records.
func (s *ProgressStore) QueryByCard(ctx context.Context, userID int64, cardID string) ([]models.CardProgress, error) {
	return s.scan(ctx, userPrefix(userID), func(p models.CardProgress) bool { return p.CardID == cardID })
}

func (s *ProgressStore) scan(ctx context.Context, prefix string, keep func(models.CardProgress) bool) ([]models.CardProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.CardProgress
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var p models.CardProgress
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return fmt.Errorf("unmarshal card progress %s: %w", it.Item().Key(), err)
			}
			if keep(p) {
				out = append(out, p)
			}
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, unavailable("scan card progress", err)
	}
	return out, nil
}

func readProgress(txn *badger.Txn, key models.ProgressKey) (models.CardProgress, error) {
	var p models.CardProgress
	item, err := txn.Get(progressKey(key))
	if err != nil {
		return p, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	})
	return p, err
}

func userPrefix(userID int64) string {
	return progressPrefix + strconv.FormatInt(userID, 10) + "/"
}

func progressKey(key models.ProgressKey) []byte {
	var b strings.Builder
	b.WriteString(userPrefix(key.UserID))
	b.WriteString(key.DeckID)
	b.WriteByte('/')
	b.WriteString(key.CardID)
	return []byte(b.String())
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %v", srs.ErrStoreUnavailable, op, err)
}
