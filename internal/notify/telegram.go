package notify

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

// TelegramSender delivers notifications through the bot API.
type TelegramSender struct {
	bot *tele.Bot
}

// NewTelegramSender wraps an initialized bot.
func NewTelegramSender(bot *tele.Bot) *TelegramSender {
	return &TelegramSender{bot: bot}
}

// Send implements Sender. Recipients are Telegram user ids.
func (s *TelegramSender) Send(ctx context.Context, recipientID int64, text string) error {
	_, err := s.bot.Send(&tele.User{ID: recipientID}, text)
	return err
}
