package telegram

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"interview-copilot/internal/config"
	"interview-copilot/internal/domain/ports/adapter"
)

// Telegram rejects longer message bodies.
const maxMessageRunes = 4096

var _ adapter.AlertNotifier = (*AlertNotifier)(nil)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// AlertNotifier posts operator alerts to a fixed set of chats.
type AlertNotifier struct {
	bot     sender
	chatIDs []int64
	log     *zerolog.Logger
}

func NewAlertNotifier(cfg config.AlertsConfig, logger *zerolog.Logger) (*AlertNotifier, error) {
	if cfg.TelegramToken == "" {
		return nil, errors.New("telegram token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newAlertNotifier(bot, cfg.ChatIDs, logger), nil
}

func newAlertNotifier(bot sender, chatIDs []int64, logger *zerolog.Logger) *AlertNotifier {
	l := logger.With().Str("component", "AlertNotifier").Logger()
	return &AlertNotifier{bot: bot, chatIDs: chatIDs, log: &l}
}

// Notify sends text to every configured chat and returns the first error.
// Delivery to the remaining chats continues after a failure.
func (n *AlertNotifier) Notify(ctx context.Context, text string) error {
	text = truncate(text, maxMessageRunes)
	var first error
	for _, id := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(id, text)
		msg.DisableWebPagePreview = true
		if _, err := n.bot.Send(msg); err != nil {
			n.log.Warn().Err(err).Int64("chat_id", id).Msg("alert send failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
