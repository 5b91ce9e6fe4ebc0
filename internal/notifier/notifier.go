package notifier

import (
	"context"
	"errors"
)

// Message is a notification about one notice
type Message struct {
	Type     string
	Title    string
	Body     string
	NoticeID *int64
	Link     string
}

// Dispatcher defines the interface for delivering notifications
type Dispatcher interface {
	// Notify delivers msg to one user
	Notify(ctx context.Context, msg Message, userID int64) error
	// NotifyByRole delivers msg to every user holding role
	NotifyByRole(ctx context.Context, msg Message, role string) error
}

// Multi fans a message out to several dispatchers. Every dispatcher is tried;
// failures are joined.
type Multi []Dispatcher

// Notify delivers msg to userID through every dispatcher
func (m Multi) Notify(ctx context.Context, msg Message, userID int64) error {
	var errs []error
	for _, d := range m {
		if err := d.Notify(ctx, msg, userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyByRole delivers msg to role through every dispatcher
func (m Multi) NotifyByRole(ctx context.Context, msg Message, role string) error {
	var errs []error
	for _, d := range m {
		if err := d.NotifyByRole(ctx, msg, role); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
