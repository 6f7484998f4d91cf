package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// TelegramSender отправляет сообщения через Telegram Bot API.
// destination — числовой chat id группы.
type TelegramSender struct {
	bot *tele.Bot
}

// NewTelegramSender создаёт TelegramSender.
// apiURL пустой — используется api.telegram.org.
func NewTelegramSender(token, apiURL string) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     apiURL,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("new bot: %w", err)
	}
	return &TelegramSender{bot: b}, nil
}

// SendMessage реализует Sender.
func (s *TelegramSender) SendMessage(ctx context.Context, destination, text string) (bool, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(destination), 10, 64)
	if err != nil {
		return false, fmt.Errorf("%w: %q is not a chat id", ErrInvalidDestination, destination)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	msg, err := s.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return false, fmt.Errorf("telegram send: %w", err)
	}
	return msg != nil, nil
}
