package notify

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/himanstore/dmpilot/internal/store"
)

// TelegramBroadcaster sends escalations to an operator chat.
type TelegramBroadcaster struct {
	bot    *telego.Bot
	chatID int64
}

func NewTelegramBroadcaster(token string, chatID int64) (*TelegramBroadcaster, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramBroadcaster{bot: bot, chatID: chatID}, nil
}

func (t *TelegramBroadcaster) Name() string { return "telegram" }

func (t *TelegramBroadcaster) Broadcast(ctx context.Context, n store.AdminNotification) error {
	text := fmt.Sprintf("⚠️ [%s] conversation %s\n%s", n.Severity, n.ConversationID, n.Text)
	_, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(t.chatID), text))
	return err
}
