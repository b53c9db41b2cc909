package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/deckbot/internal/database"
	srs "github.com/example/deckbot/internal/spaced_repetition"
	"github.com/example/deckbot/pkg/models"
)

var t0 = time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)

const userID = int64(7)

type fakeSender struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	answered []string
	err      error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.messages = append(f.messages, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.answered = append(f.answered, cb.CallbackQueryID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.messages)
	return f.messages[len(f.messages)-1]
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = nil
}

func buttons(t *testing.T, msg tgbotapi.MessageConfig) []string {
	t.Helper()
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "message has no inline keyboard")
	var data []string
	for _, row := range markup.InlineKeyboard {
		for _, button := range row {
			require.NotNil(t, button.CallbackData)
			data = append(data, *button.CallbackData)
		}
	}
	return data
}

type fixture struct {
	bot    *Bot
	sender *fakeSender
	users  *database.UserRepository
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	cfg := database.DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "deckbot.db")
	db, err := database.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	decks := database.NewDeckRepository(db)
	cards := database.NewCardRepository(db)
	require.NoError(t, decks.Create(ctx, &models.Deck{ID: "verbs", OwnerID: userID, Name: "Глаголы"}))
	require.NoError(t, decks.Create(ctx, &models.Deck{ID: "other", OwnerID: 99, Name: "Чужая"}))
	for i, c := range []models.Card{
		{ID: "go", Front: "to go", Back: "идти"},
		{ID: "be", Front: "to be", Back: "быть"},
	} {
		c.DeckID = "verbs"
		c.Position = i
		require.NoError(t, cards.Create(ctx, &c))
	}

	f := &fixture{sender: &fakeSender{}, users: database.NewUserRepository(db), now: t0}
	clock := func() time.Time { return f.now }
	store := database.NewProgressRepository(db, srs.DefaultRetryPolicy())
	f.bot = newBot(f.sender, Deps{
		Users:     f.users,
		Decks:     decks,
		Cards:     cards,
		Scheduler: srs.NewScheduler(store, srs.DefaultLevelTable(), srs.WithClock(clock)),
		Due:       srs.NewDueSetQuery(store, srs.WithClock(clock)),
		Stats:     srs.NewStatsAggregator(store, srs.WithClock(clock)),
	})
	f.bot.now = clock
	return f
}

func command(text string) *tgbotapi.Message {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return &tgbotapi.Message{
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
		From:     &tgbotapi.User{ID: userID, UserName: "learner", FirstName: "Аня"},
		Chat:     &tgbotapi.Chat{ID: userID},
	}
}

func callback(data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data               string
		action, deck, card string
		wantErr            bool
	}{
		{data: "study|verbs", action: "study", deck: "verbs"},
		{data: "show|verbs|go", action: "show", deck: "verbs", card: "go"},
		{data: "ok|verbs|go", action: "ok", deck: "verbs", card: "go"},
		{data: "fail|verbs|a|b", action: "fail", deck: "verbs", card: "a|b"},
		{data: "ok|verbs", wantErr: true},
		{data: "study|", wantErr: true},
		{data: "delete|verbs|go", wantErr: true},
		{data: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			action, deck, card, err := parseCallback(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.action, tt.deck, tt.card}, []string{action, deck, card})
		})
	}
}

func TestCallbackDataLimit(t *testing.T) {
	data, ok := callbackData(actionOK, "verbs", "go")
	assert.True(t, ok)
	assert.Equal(t, "ok|verbs|go", data)

	long := fmt.Sprintf("%070d", 0)
	_, ok = callbackData(actionShow, "verbs", long)
	assert.False(t, ok)
}

func TestPluralRu(t *testing.T) {
	forms := func(n int) string { return pluralRu(n, "карточка", "карточки", "карточек") }
	assert.Equal(t, "карточка", forms(1))
	assert.Equal(t, "карточка", forms(21))
	assert.Equal(t, "карточки", forms(3))
	assert.Equal(t, "карточек", forms(5))
	assert.Equal(t, "карточек", forms(11))
	assert.Equal(t, "карточек", forms(112))
}

func TestFormatInterval(t *testing.T) {
	assert.Equal(t, "несколько минут", formatInterval(0))
	assert.Equal(t, "4 часа", formatInterval(4*time.Hour))
	assert.Equal(t, "8 часов", formatInterval(8*time.Hour))
	assert.Equal(t, "1 день", formatInterval(24*time.Hour))
	assert.Equal(t, "3 дня", formatInterval(72*time.Hour))
	assert.Equal(t, "91 день", formatInterval(2190*time.Hour))
}

func TestStartCreatesUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.bot.HandleCommand(ctx, command("/start")))

	user, err := f.users.GetByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "learner", user.Username)
	assert.True(t, user.NotificationEnabled)
	assert.Equal(t, 9, user.NotificationHour)
	assert.Equal(t, 20, user.CardsPerDay)
	assert.Equal(t, []string{callbackDecks, callbackStats}, buttons(t, f.sender.last(t)))
}

func TestStudyFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.bot.HandleCommand(ctx, command("/study verbs")))
	msg := f.sender.last(t)
	assert.Contains(t, msg.Text, "to go")
	assert.Contains(t, msg.Text, "Осталось: 2")
	assert.Equal(t, []string{"show|verbs|go"}, buttons(t, msg))

	require.NoError(t, f.bot.HandleCallback(ctx, callback("show|verbs|go")))
	msg = f.sender.last(t)
	assert.Contains(t, msg.Text, "идти")
	assert.Equal(t, []string{"ok|verbs|go", "fail|verbs|go"}, buttons(t, msg))

	f.sender.reset()
	require.NoError(t, f.bot.HandleCallback(ctx, callback("ok|verbs|go")))
	require.Len(t, f.sender.messages, 2)
	assert.Equal(t, "✅ Отлично! Уровень 1 из 8, следующее повторение через 4 часа.", f.sender.messages[0].Text)
	assert.Contains(t, f.sender.messages[1].Text, "to be")
	assert.Contains(t, f.sender.messages[1].Text, "Осталось: 1")

	require.NoError(t, f.bot.HandleCallback(ctx, callback("fail|verbs|be")))
	assert.Contains(t, f.sender.last(t).Text, "нет карточек для повторения")
	assert.Equal(t, []string{"cb-show|verbs|go", "cb-ok|verbs|go", "cb-fail|verbs|be"}, f.sender.answered)

	// the first card becomes due again once its interval has passed
	f.now = t0.Add(4 * time.Hour)
	require.NoError(t, f.bot.HandleCallback(ctx, callback("study|verbs")))
	assert.Contains(t, f.sender.last(t).Text, "to go")
}

func TestStudyForeignOrMissingDeck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.bot.HandleCommand(ctx, command("/study other")))
	assert.Equal(t, "Колода не найдена.", f.sender.last(t).Text)

	require.NoError(t, f.bot.HandleCommand(ctx, command("/study nope")))
	assert.Equal(t, "Колода не найдена.", f.sender.last(t).Text)

	require.NoError(t, f.bot.HandleCommand(ctx, command("/study")))
	assert.Contains(t, f.sender.last(t).Text, "/study <колода>")
}

func TestStatsAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, data := range []string{"ok|verbs|go", "ok|verbs|go", "fail|verbs|go"} {
		require.NoError(t, f.bot.HandleCallback(ctx, callback(data)))
	}

	require.NoError(t, f.bot.HandleCommand(ctx, command("/card verbs go")))
	assert.Equal(t, "📝 to go\nУровень: 1 из 8\nПовторений: 3\nУспешных: 67%", f.sender.last(t).Text)

	require.NoError(t, f.bot.HandleCommand(ctx, command("/stats verbs")))
	assert.Contains(t, f.sender.last(t).Text, "Успешных ответов: 66.7%")

	require.NoError(t, f.bot.HandleCommand(ctx, command("/stats")))
	assert.Contains(t, f.sender.last(t).Text, "Колода: Глаголы")

	require.NoError(t, f.bot.HandleCommand(ctx, command("/reset verbs go")))
	require.NoError(t, f.bot.HandleCommand(ctx, command("/card verbs go")))
	assert.Contains(t, f.sender.last(t).Text, "Повторений: 0")
}

func TestNotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.bot.HandleCommand(ctx, command("/notify 21")))
	user, err := f.users.GetByID(ctx, userID)
	require.NoError(t, err)
	assert.True(t, user.NotificationEnabled)
	assert.Equal(t, 21, user.NotificationHour)

	require.NoError(t, f.bot.HandleCommand(ctx, command("/notify off")))
	user, err = f.users.GetByID(ctx, userID)
	require.NoError(t, err)
	assert.False(t, user.NotificationEnabled)
	assert.Equal(t, 21, user.NotificationHour)

	require.NoError(t, f.bot.HandleCommand(ctx, command("/notify 25")))
	assert.Contains(t, f.sender.last(t).Text, "/notify <on|off|час>")
}

func TestSendReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.bot.SendReminders(ctx, userID, 3), database.ErrUserNotFound)

	require.NoError(t, f.bot.HandleCommand(ctx, command("/start")))
	require.NoError(t, f.bot.SendReminders(ctx, userID, 3))
	msg := f.sender.last(t)
	assert.Equal(t, userID, msg.ChatID)
	assert.Contains(t, msg.Text, "3 карточки")
}

func TestHandleUpdateReportsErrors(t *testing.T) {
	f := newFixture(t)

	f.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: callback("ok|verbs|bad card")})
	assert.Equal(t, "❌ Некорректный идентификатор колоды или карточки", f.sender.last(t).Text)
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, userMessage(fmt.Errorf("x: %w", srs.ErrConflictExhausted)), "попробуйте ещё раз")
	assert.Contains(t, userMessage(srs.ErrStoreUnavailable), "недоступно")
	assert.Equal(t, "❌ Что-то пошло не так", userMessage(errors.New("boom")))
}
