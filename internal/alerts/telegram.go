package alerts

import (
	"context"

	"github.com/go-telegram/bot"

	"github.com/bloomfund/relayer/pkg/logger"
)

// TelegramAlerter pushes run outcomes to a fixed operator chat.
type TelegramAlerter struct {
	logger *logger.Logger
	bot    *bot.Bot

	chatID string
}

func NewTelegramAlerter(logger *logger.Logger, token, chatID string) (*TelegramAlerter, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, err
	}

	return &TelegramAlerter{
		logger: logger,
		bot:    b,
		chatID: chatID,
	}, nil
}

func (t *TelegramAlerter) SendAlert(message string) {
	params := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   message,
	}
	_, err := t.bot.SendMessage(context.Background(), params)
	if err != nil {
		t.logger.Error("Failed to send alert: ", err)
	}
}
