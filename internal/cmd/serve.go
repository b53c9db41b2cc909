package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/deckbot/internal/api"
	"github.com/example/deckbot/internal/bot"
	"github.com/example/deckbot/internal/config"
	"github.com/example/deckbot/internal/scheduler"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, the HTTP API and the reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			return serve(ctx, app)
		},
	}
}

func serve(ctx context.Context, app *App) error {
	cfg, logger := app.Config, app.Logger
	g, gctx := errgroup.WithContext(ctx)
	running := 0

	if cfg.HTTPAddr != "" {
		if cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		handlers := api.NewHandlers(api.Deps{
			Scheduler: app.Scheduler,
			Due:       app.Due,
			Stats:     app.Stats,
			Catalog:   app.Cards,
			Decks:     app.Decks,
			Metrics:   app.Metrics,
			Logger:    logger.With("component", "api"),
		})
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewRouter(handlers, app.Metrics),
			ReadHeaderTimeout: 10 * time.Second,
		}
		running++
		g.Go(func() error {
			logger.Info("HTTP API listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			// Даем время на graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken, bot.Deps{
			Users:     app.Users,
			Decks:     app.Decks,
			Cards:     app.Cards,
			Scheduler: app.Scheduler,
			Due:       app.Due,
			Stats:     app.Stats,
			Metrics:   app.Metrics,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		running++
		g.Go(func() error {
			logger.Info("bot started")
			if err := b.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})

		if cfg.EnableScheduler {
			reminders := scheduler.New(b, scheduler.Config{
				Users:     app.Users,
				Decks:     app.Decks,
				Catalog:   app.Cards,
				Due:       app.Due,
				StartHour: cfg.Notifications.StartHour,
				EndHour:   cfg.Notifications.EndHour,
				Logger:    logger,
			})
			if err := reminders.Start(); err != nil {
				return err
			}
			defer reminders.Stop()
			logger.Info("reminder scheduler started")
		}
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set, bot and reminders are disabled")
	}

	if running == 0 {
		return errors.New("nothing to serve: set HTTP_ADDR or TELEGRAM_BOT_TOKEN")
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("stopped")
	return err
}
