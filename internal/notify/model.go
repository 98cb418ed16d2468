package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/khidmahub/khidmahub/internal/money"
)

// Level is the display severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// RecipientKind partitions the notification feed by audience.
type RecipientKind string

const (
	ToCustomer RecipientKind = "customer"
	ToProvider RecipientKind = "provider"
)

// Recipient addresses a notification.
type Recipient struct {
	Kind RecipientKind `json:"kind"`
	ID   uuid.UUID     `json:"id"`
}

// ActionTaken records how a recipient resolved an actionable notification.
type ActionTaken string

const (
	ActionAccepted ActionTaken = "accepted"
	ActionDeclined ActionTaken = "declined"
)

// Context carries the denormalized order details the feed renders without a
// second lookup.
type Context struct {
	OrderID        uuid.UUID    `json:"order_id,omitempty"`
	InvoiceID      *uuid.UUID   `json:"invoice_id,omitempty"`
	Price          *money.Cents `json:"price,omitempty"`
	ServiceName    string       `json:"service_name,omitempty"`
	JobDescription string       `json:"job_description,omitempty"`
	Location       string       `json:"location,omitempty"`
}

// Notification is one entry in a recipient's feed. RequiresAction marks
// entries that expect a response (a new order for a provider, an issued
// invoice for a customer); ActionTaken records the eventual resolution.
type Notification struct {
	ID             uuid.UUID    `json:"id"`
	Recipient      Recipient    `json:"recipient"`
	ActorID        *uuid.UUID   `json:"actor_id,omitempty"`
	Verb           string       `json:"verb"`
	Message        string       `json:"message"`
	ShortMessage   string       `json:"short_message,omitempty"`
	Level          Level        `json:"level"`
	RequiresAction bool         `json:"requires_action"`
	ActionTaken    *ActionTaken `json:"action_taken,omitempty"`
	ActionTakenAt  *time.Time   `json:"action_taken_at,omitempty"`
	Context        *Context     `json:"context,omitempty"`
	Read           bool         `json:"is_read"`
	ReadAt         *time.Time   `json:"read_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}
