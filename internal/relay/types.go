package relay

import (
	"time"

	"github.com/google/uuid"

	"github.com/khidmahub/khidmahub/internal/notify"
)

// Task type constants
const (
	TaskNotificationDeliver = "notification:deliver"
)

// QueueNotifications is the asynq queue delivery tasks land on.
const QueueNotifications = "notifications"

// DeliverPayload is the wire form of a delivery task. The full notification
// rides along so the worker never needs a database round trip.
type DeliverPayload struct {
	NotificationID uuid.UUID           `json:"notification_id"`
	Notification   notify.Notification `json:"notification"`
	EnqueuedAt     time.Time           `json:"enqueued_at"`
}
