package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/deckbot/internal/database"
	"github.com/example/deckbot/pkg/models"
)

// Constants for callback data
const (
	callbackMainMenu = "main_menu"
	callbackDecks    = "decks"
	callbackStats    = "stats"

	actionStudy = "study"
	actionShow  = "show"
	actionOK    = "ok"
	actionFail  = "fail"

	// Telegram rejects callback data longer than this
	maxCallbackData = 64
)

// callbackData encodes an action on a deck and optionally a card.
// It reports false when the ids do not fit in a button.
func callbackData(action, deckID, cardID string) (string, bool) {
	data := action + "|" + deckID
	if cardID != "" {
		data += "|" + cardID
	}
	return data, len(data) <= maxCallbackData
}

// parseCallback splits data produced by callbackData
func parseCallback(data string) (action, deckID, cardID string, err error) {
	parts := strings.SplitN(data, "|", 3)
	switch {
	case len(parts) == 2 && parts[0] == actionStudy && parts[1] != "":
		return parts[0], parts[1], "", nil
	case len(parts) == 3 && parts[1] != "" && parts[2] != "":
		switch parts[0] {
		case actionShow, actionOK, actionFail:
			return parts[0], parts[1], parts[2], nil
		}
	}
	return "", "", "", fmt.Errorf("unknown callback data %q", data)
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}
	args := strings.Fields(message.CommandArguments())

	switch message.Command() {
	case "start":
		return b.handleStart(ctx, message)
	case "help":
		return b.handleHelp(message.Chat.ID)
	case "decks":
		return b.handleDecks(ctx, message.From.ID, message.Chat.ID)
	case "study":
		if len(args) != 1 {
			return b.reply(message.Chat.ID, "Укажите колоду: /study <колода>")
		}
		return b.sendNextCard(ctx, message.From.ID, message.Chat.ID, args[0])
	case "stats":
		if len(args) == 0 {
			return b.handleOverview(ctx, message.From.ID, message.Chat.ID)
		}
		return b.handleDeckStats(ctx, message.From.ID, message.Chat.ID, args[0])
	case "card":
		if len(args) != 2 {
			return b.reply(message.Chat.ID, "Укажите колоду и карточку: /card <колода> <карточка>")
		}
		return b.handleCardStats(ctx, message.From.ID, message.Chat.ID, args[0], args[1])
	case "reset":
		if len(args) != 2 {
			return b.reply(message.Chat.ID, "Укажите колоду и карточку: /reset <колода> <карточка>")
		}
		return b.handleReset(ctx, message.From.ID, message.Chat.ID, args[0], args[1])
	case "notify":
		return b.handleNotify(ctx, message, args)
	default:
		return b.reply(message.Chat.ID, "Неизвестная команда. Используйте /help для просмотра списка доступных команд.")
	}
}

// HandleCallback handles inline keyboard presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	// Убираем "часики" на кнопке
	if _, err := b.sender.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.Logger.Warn("failed to answer callback", "error", err)
	}

	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	switch callback.Data {
	case callbackMainMenu:
		return b.showMainMenu(chatID)
	case callbackDecks:
		return b.handleDecks(ctx, userID, chatID)
	case callbackStats:
		return b.handleOverview(ctx, userID, chatID)
	}

	action, deckID, cardID, err := parseCallback(callback.Data)
	if err != nil {
		return err
	}
	switch action {
	case actionStudy:
		return b.sendNextCard(ctx, userID, chatID, deckID)
	case actionShow:
		return b.showAnswer(ctx, chatID, deckID, cardID)
	default:
		return b.handleAnswer(ctx, userID, chatID, deckID, cardID, action == actionOK)
	}
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	// Создаем пользователя при первом взаимодействии
	if _, err := b.ensureUser(ctx, message.From); err != nil {
		return err
	}

	text := "👋 Добро пожаловать!\n\n" +
		"Я помогу вам запоминать карточки методом интервального повторения.\n\n" +
		"🔹 Как это работает:\n" +
		"1. Выберите колоду\n" +
		"2. Отвечайте на карточки, которые пора повторить\n" +
		"3. Правильный ответ отодвигает следующее повторение, ошибка приближает его\n" +
		"4. Отслеживайте свой прогресс"

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handleHelp(chatID int64) error {
	var text strings.Builder
	text.WriteString("📖 Справка по использованию бота\n\n" +
		"/decks - Ваши колоды\n" +
		"/study <колода> - Повторить карточки колоды\n" +
		"/stats [колода] - Статистика по всем колодам или по одной\n" +
		"/card <колода> <карточка> - Статистика карточки\n" +
		"/reset <колода> <карточка> - Начать карточку заново\n" +
		"/notify on|off|<час> - Настроить напоминания\n\n" +
		"🔄 Интервалы повторения:\n")

	for level, interval := range b.Scheduler.Levels().Intervals() {
		if level == 0 {
			continue
		}
		text.WriteString(fmt.Sprintf("Уровень %d: через %s\n", level, formatInterval(interval)))
	}

	msg := tgbotapi.NewMessage(chatID, text.String())
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "⬅️ Вернуться в меню", CallbackData: callbackMainMenu}},
	})
	return b.sendMessage(msg)
}

func (b *Bot) handleDecks(ctx context.Context, userID, chatID int64) error {
	decks, err := b.Decks.ListByOwner(ctx, userID)
	if err != nil {
		return err
	}
	if len(decks) == 0 {
		return b.reply(chatID, "У вас пока нет колод.")
	}

	var buttons [][]MenuButton
	for _, deck := range decks {
		data, ok := callbackData(actionStudy, deck.ID, "")
		if !ok {
			b.Logger.Warn("deck id too long for a button", "deck_id", deck.ID)
			continue
		}
		buttons = append(buttons, []MenuButton{{Text: "🎯 " + deck.Name, CallbackData: data}})
	}
	buttons = append(buttons, []MenuButton{{Text: "⬅️ Вернуться в меню", CallbackData: callbackMainMenu}})

	msg := tgbotapi.NewMessage(chatID, "📚 Выберите колоду для повторения:")
	msg.ReplyMarkup = createKeyboard(buttons)
	return b.sendMessage(msg)
}

// sendNextCard shows the first due card of a deck, in catalog order
func (b *Bot) sendNextCard(ctx context.Context, userID, chatID int64, deckID string) error {
	deck, err := b.ownDeck(ctx, userID, deckID)
	if err != nil {
		if errors.Is(err, database.ErrDeckNotFound) {
			return b.reply(chatID, "Колода не найдена.")
		}
		return err
	}

	due, err := b.Due.DueFromCatalog(ctx, b.Cards, userID, deck.ID)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("🎉 В колоде «%s» нет карточек для повторения.", deck.Name))
		msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
		return b.sendMessage(msg)
	}

	card, err := b.Cards.GetByID(ctx, deck.ID, due[0])
	if err != nil {
		return err
	}
	data, ok := callbackData(actionShow, deck.ID, card.ID)
	if !ok {
		return fmt.Errorf("card %s/%s: id too long for a button", deck.ID, card.ID)
	}

	text := fmt.Sprintf("📝 %s\n\nОсталось: %d", card.Front, len(due))
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "👀 Показать ответ", CallbackData: data}},
	})
	return b.sendMessage(msg)
}

func (b *Bot) showAnswer(ctx context.Context, chatID int64, deckID, cardID string) error {
	card, err := b.Cards.GetByID(ctx, deckID, cardID)
	if err != nil {
		if errors.Is(err, database.ErrCardNotFound) {
			return b.reply(chatID, "Карточка не найдена.")
		}
		return err
	}
	okData, _ := callbackData(actionOK, deckID, cardID)
	failData, _ := callbackData(actionFail, deckID, cardID)

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("📝 %s\n\n💡 %s", card.Front, card.Back))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{
			{Text: "✅ Помню", CallbackData: okData},
			{Text: "❌ Забыл", CallbackData: failData},
		},
	})
	return b.sendMessage(msg)
}

func (b *Bot) handleAnswer(ctx context.Context, userID, chatID int64, deckID, cardID string, successful bool) error {
	res, err := b.Scheduler.UpdateProgress(ctx, userID, deckID, cardID, successful)
	if b.Metrics != nil {
		b.Metrics.ObserveReview(successful, err)
	}
	if err != nil {
		return err
	}

	verdict := "❌ Ничего, повторим скоро."
	if successful {
		verdict = "✅ Отлично!"
	}
	wait := res.NextReviewAt.Sub(b.now()).Round(time.Hour)
	text := fmt.Sprintf("%s Уровень %d из %d, следующее повторение через %s.",
		verdict, res.Level, models.MaxLevel, formatInterval(wait))
	if err := b.reply(chatID, text); err != nil {
		return err
	}
	return b.sendNextCard(ctx, userID, chatID, deckID)
}

func (b *Bot) handleOverview(ctx context.Context, userID, chatID int64) error {
	decks, err := b.Decks.ListByOwner(ctx, userID)
	if err != nil {
		return err
	}
	if len(decks) == 0 {
		return b.reply(chatID, "У вас пока нет статистики.")
	}
	ids := make([]string, len(decks))
	for i, d := range decks {
		ids[i] = d.ID
	}
	overview, err := b.Stats.GetOverview(ctx, userID, ids)
	if err != nil {
		return err
	}

	var text strings.Builder
	text.WriteString("📊 Ваша статистика\n\n")
	for i, stats := range overview {
		text.WriteString(formatDeckStats(decks[i].Name, stats))
		text.WriteString("\n")
	}
	return b.reply(chatID, text.String())
}

func (b *Bot) handleDeckStats(ctx context.Context, userID, chatID int64, deckID string) error {
	deck, err := b.ownDeck(ctx, userID, deckID)
	if err != nil {
		if errors.Is(err, database.ErrDeckNotFound) {
			return b.reply(chatID, "Колода не найдена.")
		}
		return err
	}
	stats, err := b.Stats.GetDeckStats(ctx, userID, deck.ID)
	if err != nil {
		return err
	}
	return b.reply(chatID, "📊 "+formatDeckStats(deck.Name, stats))
}

func (b *Bot) handleCardStats(ctx context.Context, userID, chatID int64, deckID, cardID string) error {
	card, err := b.Cards.GetByID(ctx, deckID, cardID)
	if err != nil {
		if errors.Is(err, database.ErrCardNotFound) {
			return b.reply(chatID, "Карточка не найдена.")
		}
		return err
	}
	stats, err := b.Stats.GetCardStats(ctx, userID, card.ID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("📝 %s\nУровень: %d из %d\nПовторений: %d\nУспешных: %d%%",
		card.Front, stats.Level, models.MaxLevel, stats.TotalReviews, stats.SuccessRate)
	return b.reply(chatID, text)
}

func (b *Bot) handleReset(ctx context.Context, userID, chatID int64, deckID, cardID string) error {
	if _, err := b.ownDeck(ctx, userID, deckID); err != nil {
		if errors.Is(err, database.ErrDeckNotFound) {
			return b.reply(chatID, "Колода не найдена.")
		}
		return err
	}
	if err := b.Scheduler.ResetProgress(ctx, userID, deckID, cardID); err != nil {
		return err
	}
	return b.reply(chatID, "🔄 Прогресс карточки сброшен, она снова ждёт повторения.")
}

func (b *Bot) handleNotify(ctx context.Context, message *tgbotapi.Message, args []string) error {
	usage := "Пожалуйста, укажите on, off или час (0-23): /notify <on|off|час>"
	if len(args) != 1 {
		return b.reply(message.Chat.ID, usage)
	}
	user, err := b.ensureUser(ctx, message.From)
	if err != nil {
		return err
	}

	enabled, hour := user.NotificationEnabled, user.NotificationHour
	switch strings.ToLower(args[0]) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		h, err := strconv.Atoi(args[0])
		if err != nil || h < 0 || h > 23 {
			return b.reply(message.Chat.ID, usage)
		}
		enabled, hour = true, h
	}

	if err := b.Users.SetNotification(ctx, user.ID, enabled, hour); err != nil {
		return err
	}
	text := "🔕 Напоминания выключены"
	if enabled {
		text = fmt.Sprintf("🔔 Напоминания включены, время: %d:00 (UTC)", hour)
	}
	return b.reply(message.Chat.ID, text)
}

func (b *Bot) showMainMenu(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "Главное меню:")
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

// ensureUser loads the user, creating it with default settings on first contact
func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*models.User, error) {
	user, err := b.Users.GetByID(ctx, from.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, database.ErrUserNotFound) {
		return nil, err
	}
	user = &models.User{
		ID:                  from.ID,
		Username:            from.UserName,
		FirstName:           from.FirstName,
		NotificationEnabled: true,
		NotificationHour:    b.Config.DefaultNotificationHour,
		CardsPerDay:         b.Config.DefaultCardsPerDay,
	}
	if err := b.Users.CreateOrUpdate(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// ownDeck returns the deck when it belongs to userID and ErrDeckNotFound otherwise
func (b *Bot) ownDeck(ctx context.Context, userID int64, deckID string) (*models.Deck, error) {
	deck, err := b.Decks.GetByID(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if deck.OwnerID != userID {
		return nil, fmt.Errorf("%w: %s", database.ErrDeckNotFound, deckID)
	}
	return deck, nil
}

func (b *Bot) reply(chatID int64, text string) error {
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func formatDeckStats(name string, stats models.DeckStats) string {
	return fmt.Sprintf("Колода: %s\nКарточек начато: %d\nВыучено: %d (%.1f%%)\nУспешных ответов: %.1f%%\n",
		name, stats.TotalCards, stats.CompletedCards, stats.CompletionRate, stats.SuccessRate)
}

// formatInterval renders a duration as hours below a day and as days above
func formatInterval(d time.Duration) string {
	hours := int(d / time.Hour)
	switch {
	case hours <= 0:
		return "несколько минут"
	case hours < 24:
		return fmt.Sprintf("%d %s", hours, pluralRu(hours, "час", "часа", "часов"))
	default:
		days := hours / 24
		return fmt.Sprintf("%d %s", days, pluralRu(days, "день", "дня", "дней"))
	}
}
