package digest

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// LogNotifier writes summaries to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, s Summary) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Daily digest",
		"learner", s.LearnerID,
		"new", s.New,
		"review", s.Review,
	)
	return nil
}

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends summaries to the chats mapped to each learner.
// Learners without a chat are skipped silently.
type TelegramNotifier struct {
	bot   messageSender
	chats map[string]int64
}

// NewTelegramNotifier connects to the bot API with token.
func NewTelegramNotifier(token string, chats map[string]int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chats: chats}, nil
}

func (n *TelegramNotifier) Notify(_ context.Context, s Summary) error {
	chatID, ok := n.chats[s.LearnerID]
	if !ok {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, s.Text())
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message to chat %d: %w", chatID, err)
	}
	return nil
}
