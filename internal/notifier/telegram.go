package notifier

import (
	"context"
	"fmt"

	"github.com/pfrederiksen/bid-scout/internal/logger"
	"github.com/pfrederiksen/bid-scout/internal/telegram"
)

// Sender sends a formatted message to a Telegram chat
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Telegram broadcasts notifications to one chat per role
type Telegram struct {
	sender Sender
	chats  map[string]string
}

// NewTelegram creates a Telegram dispatcher. chats maps a role to the chat
// that receives its notifications.
func NewTelegram(sender Sender, chats map[string]string) *Telegram {
	return &Telegram{sender: sender, chats: chats}
}

// Notify is a no-op: Telegram chats are shared by role, not owned by users
func (t *Telegram) Notify(ctx context.Context, msg Message, userID int64) error {
	return nil
}

// NotifyByRole posts msg to the chat configured for role
func (t *Telegram) NotifyByRole(ctx context.Context, msg Message, role string) error {
	chatID, ok := t.chats[role]
	if !ok || chatID == "" {
		logger.Debug("No Telegram chat for role", logger.Fields{"role": role})
		return nil
	}

	text := telegram.FormatNotice(msg.Title, msg.Body, msg.Link)
	if err := t.sender.SendMessage(ctx, chatID, text); err != nil {
		return fmt.Errorf("telegram notification for role %q: %w", role, err)
	}
	return nil
}
