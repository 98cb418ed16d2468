package notify

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter scopes a recipient's feed.
type ListFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// Store persists the notification feed.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id uuid.UUID) (Notification, error)
	ListByRecipient(ctx context.Context, r Recipient, f ListFilter) ([]Notification, error)
	CountUnread(ctx context.Context, r Recipient) (int, error)
	// MarkRead is scoped to the recipient so one user cannot touch
	// another's feed.
	MarkRead(ctx context.Context, r Recipient, id uuid.UUID) error
	MarkAllRead(ctx context.Context, r Recipient) (int, error)
	// RecordAction resolves an actionable notification exactly once.
	RecordAction(ctx context.Context, r Recipient, id uuid.UUID, action ActionTaken) error
}
