package notifier

import (
	"context"
	"fmt"

	"github.com/pfrederiksen/bid-scout/internal/storage"
)

// InboxStore persists per-user notifications
type InboxStore interface {
	UsersByRole(ctx context.Context, role string) ([]int64, error)
	CreateNotification(ctx context.Context, n *storage.Notification) error
}

// Inbox writes one notification row per recipient
type Inbox struct {
	store InboxStore
}

// NewInbox creates an inbox dispatcher
func NewInbox(store InboxStore) *Inbox {
	return &Inbox{store: store}
}

// Notify stores msg for userID
func (i *Inbox) Notify(ctx context.Context, msg Message, userID int64) error {
	err := i.store.CreateNotification(ctx, &storage.Notification{
		UserID:   userID,
		NoticeID: msg.NoticeID,
		Type:     msg.Type,
		Title:    msg.Title,
		Message:  msg.Body,
	})
	if err != nil {
		return fmt.Errorf("notifying user %d: %w", userID, err)
	}
	return nil
}

// NotifyByRole stores msg for every holder of role. A role nobody holds is
// not an error.
func (i *Inbox) NotifyByRole(ctx context.Context, msg Message, role string) error {
	users, err := i.store.UsersByRole(ctx, role)
	if err != nil {
		return fmt.Errorf("resolving role %q: %w", role, err)
	}
	for _, id := range users {
		if err := i.Notify(ctx, msg, id); err != nil {
			return err
		}
	}
	return nil
}
