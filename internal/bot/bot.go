// Package bot is the Telegram front-end: study sessions, statistics and reminders.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/deckbot/internal/metrics"
	srs "github.com/example/deckbot/internal/spaced_repetition"
	"github.com/example/deckbot/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// sender is the part of tgbotapi.BotAPI the bot talks through
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// UserStore keeps Telegram users and their reminder settings
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	CreateOrUpdate(ctx context.Context, user *models.User) error
	SetNotification(ctx context.Context, id int64, enabled bool, hour int) error
}

// DeckStore lists and looks up decks
type DeckStore interface {
	GetByID(ctx context.Context, id string) (*models.Deck, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Deck, error)
}

// CardStore is the card catalog
type CardStore interface {
	srs.Catalog
	GetByID(ctx context.Context, deckID, cardID string) (*models.Card, error)
}

// Deps are the components the bot works with
type Deps struct {
	Users     UserStore
	Decks     DeckStore
	Cards     CardStore
	Scheduler *srs.Scheduler
	Due       *srs.DueSetQuery
	Stats     *srs.StatsAggregator
	// Metrics is optional
	Metrics *metrics.Metrics
	Config  *BotConfig
	Logger  *slog.Logger
}

// Bot represents the Telegram bot application
type Bot struct {
	api    *tgbotapi.BotAPI
	sender sender
	now    func() time.Time
	Deps
}

// New authorizes against the Telegram API with token
func New(token string, deps Deps) (*Bot, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is not set")
	}
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	b := newBot(botAPI, deps)
	b.api = botAPI
	b.Logger.Info("authorized on account", "username", botAPI.Self.UserName)
	return b, nil
}

func newBot(s sender, deps Deps) *Bot {
	if deps.Config == nil {
		deps.Config = DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	deps.Logger = deps.Logger.With("component", "bot")
	return &Bot{sender: s, now: time.Now, Deps: deps}
}

// Start polls for updates until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot is not connected to the Telegram API")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.Config.UpdateTimeout
	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// SendReminders implements the scheduler.Notifier interface
func (b *Bot) SendReminders(ctx context.Context, userID int64, count int) error {
	// Проверяем, существует ли пользователь
	if _, err := b.Users.GetByID(ctx, userID); err != nil {
		return err
	}

	// In private chats the chat ID equals the user ID
	text := fmt.Sprintf("🔔 У вас %d %s для повторения! Выберите колоду, чтобы начать.",
		count, pluralRu(count, "карточка", "карточки", "карточек"))
	msg := tgbotapi.NewMessage(userID, text)
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	if err := b.sendMessage(msg); err != nil {
		return err
	}
	b.Logger.Info("sent reminder", "user_id", userID, "count", count)
	return nil
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var (
		chatID int64
		err    error
	)
	switch {
	case update.Message != nil && update.Message.IsCommand():
		chatID = update.Message.Chat.ID
		err = b.HandleCommand(ctx, update.Message)
	case update.Message != nil:
		chatID = update.Message.Chat.ID
		msg := tgbotapi.NewMessage(chatID, "Я понимаю только команды. Используйте /help для просмотра списка.")
		msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
		err = b.sendMessage(msg)
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		chatID = update.CallbackQuery.Message.Chat.ID
		err = b.HandleCallback(ctx, update.CallbackQuery)
	default:
		return
	}

	if err != nil {
		b.Logger.Error("failed to handle update", "update_id", update.UpdateID, "error", err)
		if sendErr := b.sendMessage(tgbotapi.NewMessage(chatID, userMessage(err))); sendErr != nil {
			b.Logger.Error("failed to report error", "error", sendErr)
		}
	}
}

func (b *Bot) sendMessage(msg tgbotapi.Chattable) error {
	if _, err := b.sender.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// MainMenuButtons returns the buttons for the main menu
func (b *Bot) MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{
			{Text: "📚 Колоды", CallbackData: callbackDecks},
			{Text: "📊 Статистика", CallbackData: callbackStats},
		},
	}
}

// userMessage turns an error into something a user can act on
func userMessage(err error) string {
	switch {
	case errors.Is(err, srs.ErrInvalidInput):
		return "❌ Некорректный идентификатор колоды или карточки"
	case errors.Is(err, srs.ErrConflictExhausted):
		return "⏳ Карточка сейчас обновляется, попробуйте ещё раз"
	case errors.Is(err, srs.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return "⚠️ Хранилище временно недоступно, попробуйте позже"
	default:
		return "❌ Что-то пошло не так"
	}
}

// pluralRu picks the Russian plural form for n
func pluralRu(n int, one, few, many string) string {
	n %= 100
	if n >= 11 && n <= 14 {
		return many
	}
	switch n % 10 {
	case 1:
		return one
	case 2, 3, 4:
		return few
	default:
		return many
	}
}
