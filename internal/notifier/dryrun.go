package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
)

// DryRun prints what would be delivered without delivering anything
type DryRun struct {
	out io.Writer
}

// NewDryRun creates a dry-run dispatcher writing to out (stdout if nil)
func NewDryRun(out io.Writer) *DryRun {
	if out == nil {
		out = os.Stdout
	}
	return &DryRun{out: out}
}

// Notify prints the message that would be sent to userID
func (d *DryRun) Notify(ctx context.Context, msg Message, userID int64) error {
	return d.print(fmt.Sprintf("user %d", userID), msg)
}

// NotifyByRole prints the message that would be sent to role
func (d *DryRun) NotifyByRole(ctx context.Context, msg Message, role string) error {
	return d.print(fmt.Sprintf("role %s", role), msg)
}

func (d *DryRun) print(recipient string, msg Message) error {
	_, err := fmt.Fprintf(d.out, "--- Notification to %s ---\n[%s] %s\n%s\n\n",
		recipient, msg.Type, msg.Title, msg.Body)
	return err
}
