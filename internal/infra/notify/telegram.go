package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"billing-sync/internal/domain/ports/adapter"
	"billing-sync/internal/infra/metrics"
	"billing-sync/internal/infra/worker"
)

var _ adapter.Notifier = (*TelegramNotifier)(nil)

// Sender is the subset of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts operator notices to a fixed set of admin chats.
// Messages are queued on a worker pool; a full queue drops the notice.
type TelegramNotifier struct {
	bot   Sender
	chats []int64
	pool  *worker.Pool
	log   *zerolog.Logger
}

func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

func NewTelegramNotifier(bot Sender, chats []int64, pool *worker.Pool, logger *zerolog.Logger) *TelegramNotifier {
	l := logger.With().Str("component", "TelegramNotifier").Logger()
	return &TelegramNotifier{bot: bot, chats: chats, pool: pool, log: &l}
}

func (n *TelegramNotifier) Notify(_ context.Context, text string) error {
	for _, chatID := range n.chats {
		chatID := chatID
		err := n.pool.Submit(func(ctx context.Context) error {
			msg := tgbotapi.NewMessage(chatID, text)
			msg.DisableWebPagePreview = true
			if _, err := n.bot.Send(msg); err != nil {
				metrics.IncNotification("error")
				return fmt.Errorf("send to chat %d: %w", chatID, err)
			}
			metrics.IncNotification("sent")
			return nil
		})
		if err != nil {
			metrics.IncNotification("dropped")
			n.log.Warn().Err(err).Int64("chat_id", chatID).Msg("notification dropped")
		}
	}
	return nil
}

// Noop discards notices; used when no bot token is configured.
type Noop struct{}

func (Noop) Notify(context.Context, string) error { return nil }
