package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"kittylog/internal/store"
)

// TelegramSender delivers reminders as bot messages. The subscription's
// endpoint field carries the chat id.
type TelegramSender struct {
	bot *tele.Bot
}

func NewTelegramSender(token string) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: &http.Client{Timeout: 15 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b}, nil
}

func (t *TelegramSender) Send(ctx context.Context, sub store.Subscription, m Message) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(sub.Endpoint), 10, 64)
	if err != nil {
		return fmt.Errorf("subscription %d: endpoint is not a chat id: %w", sub.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	text := m.Title + "\n" + m.Body
	_, err = t.bot.Send(tele.ChatID(chatID), text)
	return classifyTelegramError(err)
}

// classifyTelegramError translates telebot errors into the dispatcher's
// taxonomy. A blocked bot or vanished chat is this transport's equivalent of
// a gone push endpoint.
func classifyTelegramError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrNotStartedByUser):
		return &PermanentError{Status: 403, Err: err}
	case errors.Is(err, tele.ErrChatNotFound):
		return &PermanentError{Status: 404, Err: err}
	default:
		return err
	}
}
