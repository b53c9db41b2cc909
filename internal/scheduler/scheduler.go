// Package scheduler sends hourly review reminders.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	srs "github.com/example/deckbot/internal/spaced_repetition"
	"github.com/example/deckbot/pkg/models"
)

// Default notification window
const (
	DefaultNotificationStartHour = 4
	DefaultNotificationEndHour   = 18
)

// Notifier interface for sending notifications
type Notifier interface {
	SendReminders(ctx context.Context, userID int64, count int) error
}

// UserSource lists the users who want a reminder at a given hour
type UserSource interface {
	GetUsersForNotification(ctx context.Context, hour int) ([]models.User, error)
}

// DeckLister lists the decks of a user
type DeckLister interface {
	ListOwnerDeckIDs(ctx context.Context, ownerID int64) ([]string, error)
}

// Config wires the scheduler to its data sources
type Config struct {
	Users   UserSource
	Decks   DeckLister
	Catalog srs.Catalog
	Due     *srs.DueSetQuery

	// StartHour and EndHour bound the hours (inclusive) at which reminders go out
	StartHour int
	EndHour   int
	// Location is the clock reminders follow; UTC when nil
	Location *time.Location
	Logger   *slog.Logger
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	notifier  Notifier
	cfg       Config
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new scheduler instance
func New(notifier Notifier, cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(cfg.Location),
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With("component", "scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() error {
	// Schedule hourly check for users who need notifications
	_, err := s.scheduler.Every(1).Hour().StartAt(nextHour(time.Now().In(s.cfg.Location))).Do(func() {
		if _, err := s.RunCheck(s.ctx, time.Now()); err != nil {
			s.logger.Error("reminder check failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}

	// Start the scheduler in a non-blocking manner
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks and aborts a running check
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

// RunCheck sends reminders to everyone whose notification hour is the hour of now.
// It returns the number of reminders sent. Failures for one user do not stop the others.
func (s *Scheduler) RunCheck(ctx context.Context, now time.Time) (int, error) {
	currentHour := now.In(s.cfg.Location).Hour()
	if currentHour < s.cfg.StartHour || currentHour > s.cfg.EndHour {
		s.logger.Debug("outside notification hours, skipping reminders",
			"hour", currentHour, "start", s.cfg.StartHour, "end", s.cfg.EndHour)
		return 0, nil
	}

	users, err := s.cfg.Users.GetUsersForNotification(ctx, currentHour)
	if err != nil {
		return 0, fmt.Errorf("failed to get users for notification: %w", err)
	}

	sent := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		count, err := s.CountDue(ctx, user.ID)
		if err != nil {
			s.logger.Error("failed to count due cards", "user_id", user.ID, "error", err)
			continue
		}
		if count == 0 {
			continue
		}
		// Don't send more than the user's daily preference
		if user.CardsPerDay > 0 && count > user.CardsPerDay {
			count = user.CardsPerDay
		}
		if err := s.notifier.SendReminders(ctx, user.ID, count); err != nil {
			s.logger.Error("failed to send reminder", "user_id", user.ID, "error", err)
			continue
		}
		sent++
	}
	s.logger.Info("reminders sent", "hour", currentHour, "users", len(users), "sent", sent)
	return sent, nil
}

// CountDue counts due cards over all decks of a user
func (s *Scheduler) CountDue(ctx context.Context, userID int64) (int, error) {
	deckIDs, err := s.cfg.Decks.ListOwnerDeckIDs(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list decks: %w", err)
	}
	total := 0
	for _, deckID := range deckIDs {
		due, err := s.cfg.Due.DueFromCatalog(ctx, s.cfg.Catalog, userID, deckID)
		if err != nil {
			return 0, err
		}
		total += len(due)
	}
	return total, nil
}

func nextHour(t time.Time) time.Time {
	return t.Truncate(time.Hour).Add(time.Hour)
}
