package notify

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram posts staff alerts to one admin chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Printf("[notify] telegram bot authorised as %s", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		log.Printf("[notify] telegram not configured, dropped: %s", text)
		return
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("[notify] telegram send: %v", err)
	}
}

// Log is the fallback notifier when no bot is configured.
type Log struct{}

func (Log) Notify(ctx context.Context, text string) {
	log.Printf("[notify] %s", text)
}
