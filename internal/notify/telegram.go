package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier pushes operational notices to admin chats.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	admins []int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(token string, debug bool, admins []int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = debug

	return &TelegramNotifier{
		bot:    bot,
		admins: admins,
		logger: logger,
	}, nil
}

// Notify sends text to every configured admin chat. Delivery failures are
// logged, not returned; an unreachable admin must not stall the pipeline.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) {
	if n == nil || n.bot == nil {
		return
	}
	for _, chatID := range n.admins {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram notice failed")
		}
	}
}
