package alert

import (
	"context"

	"ai-image-queue/internal/domain/ports/adapter"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var _ adapter.AlertNotifier = (*TelegramAlerter)(nil)

// TelegramAlerter posts failure notifications to an operator chat.
type TelegramAlerter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramAlerter(token string, chatID int64) (*TelegramAlerter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramAlerter{bot: bot, chatID: chatID}, nil
}

func (a *TelegramAlerter) Notify(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(a.chatID, text)
	_, err := a.bot.Send(msg)
	return err
}
